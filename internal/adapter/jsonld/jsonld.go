// Package jsonld extracts events from schema.org ld+json markup on listing and detail pages.
package jsonld

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/schemaorg"
)

// Confidence for complete and partial markup.
const (
	CompleteConfidence = 0.9
	PartialConfidence  = 0.75
	defaultMaxDetails  = 50
)

// Options are read from the source config.
type Options struct {
	// EventsURL overrides the source URL as the listing page.
	EventsURL string `mapstructure:"events_url"`
	// Pages are additional listing pages.
	Pages []string `mapstructure:"pages"`
	// DetailSelector selects links to detail pages carrying the markup when the listing has none.
	DetailSelector string `mapstructure:"detail_selector"`
	MaxDetails     int    `mapstructure:"max_details"`
}

// Adapter reads schema.org events.
type Adapter struct {
	fetcher adapter.Fetcher
	log     logger.Logger
}

// New creates a jsonld Adapter.
func New(fetcher adapter.Fetcher, log logger.Logger) *Adapter {
	return &Adapter{fetcher: fetcher, log: log}
}

// Factory returns an adapter.Factory for jsonld_only and aggregator sources.
func Factory(fetcher adapter.Fetcher, log logger.Logger) adapter.Factory {
	a := New(fetcher, log)
	return func(*domain.Source) (adapter.Adapter, error) { return a, nil }
}

// Extract implements adapter.Adapter. When a page fetch is rate limited after some events were
// read, the events gathered so far are returned together with the error.
func (a *Adapter) Extract(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error) {
	var opts Options
	if err := adapter.DecodeOptions(src, &opts); err != nil {
		return nil, crawlerr.Parse(err, src.URL)
	}
	if opts.MaxDetails <= 0 {
		opts.MaxDetails = defaultMaxDetails
	}

	listing := src.URL
	if opts.EventsURL != "" {
		listing = opts.EventsURL
	}

	var out []domain.RawEventCandidate
	for i, pageURL := range append([]string{listing}, opts.Pages...) {
		found, err := a.page(ctx, pageURL, opts)
		out = append(out, found...)
		if err != nil {
			if i == 0 || crawlerr.IsRateLimited(err) {
				adapter.ApplyVenueDefaults(src, out)
				return out, err
			}
			logger.FromContext(ctx, a.log).Warn("Skipping listing page",
				logger.String("url", pageURL),
				logger.Error(err),
			)
		}
	}

	adapter.ApplyVenueDefaults(src, out)
	return out, nil
}

func (a *Adapter) page(ctx context.Context, pageURL string, opts Options) ([]domain.RawEventCandidate, error) {
	doc, base, err := a.load(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	out := a.convert(ctx, schemaorg.ExtractDocument(doc), base)
	if len(out) > 0 || opts.DetailSelector == "" {
		return out, nil
	}

	for _, link := range detailLinks(doc, base, opts.DetailSelector, opts.MaxDetails) {
		detail, detailBase, detailErr := a.load(ctx, link)
		if detailErr != nil {
			if crawlerr.IsRateLimited(detailErr) {
				return out, detailErr
			}
			logger.FromContext(ctx, a.log).Debug("Skipping detail page", logger.String("url", link), logger.Error(detailErr))
			continue
		}
		out = append(out, a.convert(ctx, schemaorg.ExtractDocument(detail), detailBase)...)
	}
	return out, nil
}

func (a *Adapter) load(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	resp, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, crawlerr.Parse(err, pageURL)
	}
	base, err := url.Parse(resp.FinalURL)
	if err != nil || resp.FinalURL == "" {
		base, _ = url.Parse(pageURL)
	}
	return doc, base, nil
}

// Convert turns schema.org events into candidates, dropping cancelled events and ones
// without a readable start date.
func Convert(events []schemaorg.Event, base *url.URL) []domain.RawEventCandidate {
	out := make([]domain.RawEventCandidate, 0, len(events))
	for i := range events {
		ev := &events[i]
		if strings.HasSuffix(ev.Status, "EventCancelled") {
			continue
		}
		confidence := PartialConfidence
		if ev.IsComplete() {
			confidence = CompleteConfidence
		}
		c, err := ev.ToCandidate(base, confidence)
		if err != nil {
			continue
		}
		c.Title = adapter.CleanText(c.Title)
		c.Description = adapter.CleanText(c.Description)
		out = append(out, c)
	}
	return out
}

func (a *Adapter) convert(ctx context.Context, events []schemaorg.Event, base *url.URL) []domain.RawEventCandidate {
	out := Convert(events, base)
	if dropped := len(events) - len(out); dropped > 0 {
		logger.FromContext(ctx, a.log).Debug("Dropped schema.org events", logger.Int("count", dropped), logger.String("url", base.String()))
	}
	return out
}

func detailLinks(doc *goquery.Document, base *url.URL, selector string, limit int) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		link := abs.String()
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		links = append(links, link)
		return len(links) < limit
	})
	return links
}
