package merge_test

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/merge"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

func floatPtr(f float64) *float64 { return &f }

func storedEvent() *domain.Event {
	return &domain.Event{
		ID:             "ev-1",
		SourceID:       "src-agg",
		Title:          "Jazz Nite",
		Description:    "old copy",
		StartDate:      date("2026-02-06"),
		IsAllDay:       true,
		VenueName:      "The Eastern",
		VenueAddress:   "777 Memorial Dr",
		PriceMin:       floatPtr(20),
		TicketURL:      "https://old.example/t",
		Tags:           pq.StringArray{"jazz"},
		Confidence:     0.6,
		SourcePriority: domain.PriorityAggregator,
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		candidate domain.RawEventCandidate
		priority  int
		check     func(t *testing.T, got *domain.Event, patch store.Patch)
	}{
		{
			name:      "volatile fields refresh on lower confidence",
			candidate: domain.RawEventCandidate{PriceMin: floatPtr(30), TicketURL: "https://new.example/t", Confidence: 0.2},
			priority:  domain.PriorityAggregator,
			check: func(t *testing.T, got *domain.Event, patch store.Patch) {
				assert.InDelta(t, 30.0, *got.PriceMin, 0.001)
				assert.Equal(t, "https://new.example/t", got.TicketURL)
				assert.Contains(t, patch, store.ColPriceMin)
				assert.NotContains(t, patch, store.ColConfidence)
			},
		},
		{
			name:      "descriptive fields follow higher priority",
			candidate: domain.RawEventCandidate{Title: "Jazz Night", Description: "new copy", VenueAddress: "Other St", Confidence: 0.5},
			priority:  domain.PriorityVenue,
			check: func(t *testing.T, got *domain.Event, patch store.Patch) {
				assert.Equal(t, "Jazz Night", got.Title)
				assert.Equal(t, "new copy", got.Description)
				assert.Equal(t, "777 Memorial Dr", got.VenueAddress, "address needs higher confidence")
				assert.Equal(t, "src-new", got.SourceID)
				assert.Equal(t, domain.PriorityVenue, got.SourcePriority)
			},
		},
		{
			name:      "higher confidence replaces populated fields",
			candidate: domain.RawEventCandidate{VenueAddress: "Other St", Confidence: 0.9},
			priority:  domain.PriorityAggregator,
			check: func(t *testing.T, got *domain.Event, patch store.Patch) {
				assert.Equal(t, "Other St", got.VenueAddress)
				assert.InDelta(t, 0.9, got.Confidence, 0.001)
				assert.Equal(t, "src-agg", got.SourceID, "equal priority keeps attribution")
			},
		},
		{
			name:      "lower confidence equal priority changes nothing descriptive",
			candidate: domain.RawEventCandidate{Title: "JAZZ NIGHT", Description: "", Confidence: 0.1},
			priority:  domain.PriorityAggregator,
			check: func(t *testing.T, got *domain.Event, patch store.Patch) {
				assert.Equal(t, "Jazz Nite", got.Title)
				assert.Equal(t, "old copy", got.Description)
				assert.Len(t, patch, 1, "only last_seen_at")
			},
		},
		{
			name:      "time fills unknown and clears all-day",
			candidate: domain.RawEventCandidate{StartTime: strPtr("20:00"), Confidence: 0.1},
			priority:  domain.PriorityAggregator,
			check: func(t *testing.T, got *domain.Event, patch store.Patch) {
				require.NotNil(t, got.StartTime)
				assert.Equal(t, "20:00", *got.StartTime)
				assert.False(t, got.IsAllDay)
			},
		},
		{
			name:      "tags union",
			candidate: domain.RawEventCandidate{Tags: []string{"Live Music", "jazz"}, Confidence: 0.1},
			priority:  domain.PriorityAggregator,
			check: func(t *testing.T, got *domain.Event, patch store.Patch) {
				assert.Equal(t, []string{"jazz", "live music"}, []string(got.Tags))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stored := storedEvent()
			got, patch := merge.Merge(stored, &tt.candidate, "src-new", tt.priority, now)

			assert.Equal(t, now, got.LastSeenAt)
			assert.Equal(t, now, patch[store.ColLastSeenAt])
			assert.Equal(t, "Jazz Nite", stored.Title, "input is not modified")
			for col := range patch {
				assert.True(t, store.IsPatchable(col), col)
			}
			tt.check(t, got, patch)
		})
	}
}

func TestMerge_KnownTimeNeverRegresses(t *testing.T) {
	t.Parallel()

	stored := storedEvent()
	stored.StartTime = strPtr("19:00")
	stored.IsAllDay = false

	got, _ := merge.Merge(stored, &domain.RawEventCandidate{IsAllDay: true, Confidence: 1}, "src-new", domain.PriorityVenue, time.Now())
	require.NotNil(t, got.StartTime)
	assert.Equal(t, "19:00", *got.StartTime)
	assert.False(t, got.IsAllDay)
}
