// Package rendered extracts events from client-rendered pages by loading them in headless Chrome.
package rendered

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/htmlsel"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const DefaultConfidence = 0.65

// Options are read from the source config.
type Options struct {
	EventsURL    string            `mapstructure:"events_url"`
	WaitSelector string            `mapstructure:"wait_selector"`
	Scrolls      int               `mapstructure:"scrolls"`
	Selectors    htmlsel.Selectors `mapstructure:"selectors"`
	Confidence   float64           `mapstructure:"confidence"`
}

// Adapter renders the listing page, then extracts with structured data or selectors.
type Adapter struct {
	renderer Renderer
	log      logger.Logger
}

// New creates a rendered Adapter.
func New(renderer Renderer, log logger.Logger) *Adapter {
	return &Adapter{renderer: renderer, log: log}
}

// Factory returns an adapter.Factory for playwright sources.
func Factory(renderer Renderer, log logger.Logger) adapter.Factory {
	a := New(renderer, log)
	return func(*domain.Source) (adapter.Adapter, error) { return a, nil }
}

// UsesBrowser implements adapter.BrowserBacked.
func (a *Adapter) UsesBrowser() bool { return true }

// Extract implements adapter.Adapter.
func (a *Adapter) Extract(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error) {
	var opts Options
	if err := adapter.DecodeOptions(src, &opts); err != nil {
		return nil, crawlerr.Parse(err, src.URL)
	}
	if opts.Confidence == 0 {
		opts.Confidence = DefaultConfidence
	}
	target := src.URL
	if opts.EventsURL != "" {
		target = opts.EventsURL
	}

	page, err := a.renderer.Render(ctx, RenderRequest{URL: target, WaitSelector: opts.WaitSelector, Scrolls: opts.Scrolls})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, crawlerr.Network(err, target)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, crawlerr.Parse(err, target)
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil {
		base, _ = url.Parse(target)
	}

	out := htmlsel.ExtractSelection(doc.Selection, base, opts.Selectors.WithDefaults(), opts.Confidence)
	logger.FromContext(ctx, a.log).Debug("Rendered page extracted",
		logger.Int("candidates", len(out)),
	)
	adapter.ApplyVenueDefaults(src, out)
	return out, nil
}
