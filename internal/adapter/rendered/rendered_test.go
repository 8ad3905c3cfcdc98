package rendered_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/rendered"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

type fakeRenderer struct {
	page *rendered.Page
	err  error
	got  rendered.RenderRequest
}

func (f *fakeRenderer) Render(_ context.Context, req rendered.RenderRequest) (*rendered.Page, error) {
	f.got = req
	return f.page, f.err
}

const appShell = `<html><body><div id="root">
<div class="event-card"><h2>Drag Brunch</h2><time datetime="2026-04-12T11:00">Apr 12</time></div>
<div class="event-card"><h2>Trivia</h2><time datetime="2026-04-14T19:30">Apr 14</time></div>
</div></body></html>`

func TestExtract(t *testing.T) {
	t.Parallel()

	r := &fakeRenderer{page: &rendered.Page{HTML: appShell, FinalURL: "https://app.example/events"}}
	a := rendered.New(r, logger.NewNop())
	src := &domain.Source{
		Slug: "app-venue",
		URL:  "https://app.example",
		Config: domain.JSONBMap{
			"events_url":    "https://app.example/events",
			"wait_selector": ".event-card",
			"scrolls":       2,
			"selectors":     map[string]any{"item": ".event-card"},
		},
	}

	got, err := a.Extract(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Drag Brunch", got[0].Title)
	assert.Equal(t, "2026-04-12", got[0].StartDate.Format(domain.DateLayout))
	assert.InDelta(t, rendered.DefaultConfidence, got[0].Confidence, 0.001)

	assert.Equal(t, "https://app.example/events", r.got.URL)
	assert.Equal(t, ".event-card", r.got.WaitSelector)
	assert.Equal(t, 2, r.got.Scrolls)
}

func TestExtract_RenderFailure(t *testing.T) {
	t.Parallel()

	a := rendered.New(&fakeRenderer{err: errors.New("navigate: net::ERR_NAME_NOT_RESOLVED")}, logger.NewNop())
	_, err := a.Extract(context.Background(), &domain.Source{URL: "https://nowhere.example"})
	require.Error(t, err)
	assert.Equal(t, crawlerr.KindNetwork, crawlerr.KindOf(err))
}

func TestUsesBrowser(t *testing.T) {
	t.Parallel()

	a := rendered.New(&fakeRenderer{}, logger.NewNop())
	assert.True(t, adapter.RequiresRenderer(a, &domain.Source{IntegrationMethod: domain.MethodHTML}))
}
