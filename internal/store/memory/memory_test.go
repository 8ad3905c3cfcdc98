package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store/memory"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestEvents_CanonicalUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	first := &domain.Event{Title: "Jazz Night", StartDate: day("2026-02-06"), ContentHash: "h1", VenueKey: "the eastern"}
	require.NoError(t, s.Insert(ctx, first))
	require.NotEmpty(t, first.ID)

	err := s.Insert(ctx, &domain.Event{Title: "Jazz Night", ContentHash: "h1"})
	assert.True(t, crawlerr.IsStoreConflict(err))

	got, err := s.FindByFingerprint(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = s.FindByFingerprint(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEvents_MarkDuplicateAndAlias(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	winner := &domain.Event{Title: "Jazz Night", StartDate: day("2026-02-06"), ContentHash: "h1", VenueKey: "v"}
	loser := &domain.Event{Title: "Jazz Night!", StartDate: day("2026-02-06"), ContentHash: "h2", VenueKey: "v"}
	require.NoError(t, s.Insert(ctx, winner))
	require.NoError(t, s.Insert(ctx, loser))

	same, err := s.FindSameDay(ctx, "v", day("2026-02-06"))
	require.NoError(t, err)
	assert.Len(t, same, 2)

	require.NoError(t, s.MarkDuplicate(ctx, loser.ID, winner.ID))

	_, err = s.FindByFingerprint(ctx, "h2")
	require.ErrorIs(t, err, store.ErrNotFound, "demoted rows are not canonical")

	alias, err := s.FindCanonicalByAlias(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, alias.ID)

	same, err = s.FindSameDay(ctx, "v", day("2026-02-06"))
	require.NoError(t, err)
	assert.Len(t, same, 1)

	require.NoError(t, s.Insert(ctx, &domain.Event{Title: "Jazz Night!", ContentHash: "h2"}),
		"a demoted hash no longer blocks a canonical insert")
}

func TestEvents_MarkDuplicateRequiresCanonicalRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	a := &domain.Event{Title: "Jazz Jam", StartDate: day("2026-02-06"), ContentHash: "a", VenueKey: "v"}
	b := &domain.Event{Title: "Jazz Jams", StartDate: day("2026-02-06"), ContentHash: "b", VenueKey: "v"}
	c := &domain.Event{Title: "Jazz Jam!", StartDate: day("2026-02-06"), ContentHash: "c", VenueKey: "v"}
	require.NoError(t, s.Insert(ctx, a))
	require.NoError(t, s.Insert(ctx, b))
	require.NoError(t, s.Insert(ctx, c))

	require.NoError(t, s.MarkDuplicate(ctx, b.ID, a.ID))

	assert.ErrorIs(t, s.MarkDuplicate(ctx, a.ID, b.ID), store.ErrNotCanonical, "target already demoted")
	assert.ErrorIs(t, s.MarkDuplicate(ctx, b.ID, c.ID), store.ErrNotCanonical, "row already demoted")
	assert.ErrorIs(t, s.MarkDuplicate(ctx, a.ID, c.ID), store.ErrNotCanonical, "row has aliases")

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCanonical())
}

func TestEvents_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	e := &domain.Event{Title: "A", ContentHash: "h"}
	require.NoError(t, s.Insert(ctx, e))

	price := 20.0
	require.NoError(t, s.Update(ctx, e.ID, store.Patch{
		store.ColPriceMin: &price,
		store.ColTags:     []string{"jazz"},
	}))
	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PriceMin)
	assert.InDelta(t, 20.0, *got.PriceMin, 0.001)
	assert.Equal(t, []string{"jazz"}, []string(got.Tags))

	assert.Error(t, s.Update(ctx, e.ID, store.Patch{"content_hash": "x"}))
	assert.Error(t, s.Update(ctx, e.ID, store.Patch{store.ColTitle: 42}))
	assert.ErrorIs(t, s.Update(ctx, "nope", store.Patch{}), store.ErrNotFound)
}

func TestEvents_PurgeBefore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	old := &domain.Event{Title: "Old", StartDate: day("2026-01-01"), ContentHash: "old"}
	next := &domain.Event{Title: "Next", StartDate: day("2026-03-01"), ContentHash: "next"}
	require.NoError(t, s.Insert(ctx, old))
	require.NoError(t, s.Insert(ctx, next))

	n, err := s.PurgeBefore(ctx, day("2026-02-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	upcoming, err := s.ListUpcoming(ctx, day("2026-01-01"), 10)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "Next", upcoming[0].Title)
}

func TestSources(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	src := &domain.Source{Slug: "the-eastern", URL: "https://theeastern.example", IsActive: true}
	require.NoError(t, s.Upsert(ctx, src))
	assert.Equal(t, domain.MethodUnknown, src.IntegrationMethod)

	require.NoError(t, s.SetMethod(ctx, src.ID, domain.MethodHTML, true))
	require.NoError(t, s.Upsert(ctx, &domain.Source{Slug: "the-eastern", URL: "https://new.example", IntegrationMethod: domain.MethodFeed, IsActive: true}))

	got, err := s.GetBySlug(ctx, "the-eastern")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", got.URL)
	assert.Equal(t, domain.MethodHTML, got.IntegrationMethod, "manual override survives re-import")

	require.NoError(t, s.Deactivate(ctx, src.ID, "no events"))
	active, err := s.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memory.New()

	r1 := &domain.CrawlRun{SourceID: "s1", Status: domain.RunPending}
	r2 := &domain.CrawlRun{SourceID: "s1", Status: domain.RunPending}
	require.NoError(t, s.Create(ctx, r1))
	require.NoError(t, s.Create(ctx, r2))

	r1.Status = domain.RunSuccess
	require.NoError(t, s.Save(ctx, r1))
	r1.Status = domain.RunFailed
	assert.ErrorIs(t, s.Save(ctx, r1), store.ErrRunFinished)

	recent, err := s.Recent(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, r2.ID, recent[0].ID, "newest first")
	assert.Equal(t, domain.RunSuccess, recent[1].Status)
}
