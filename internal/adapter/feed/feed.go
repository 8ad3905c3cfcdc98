// Package feed extracts events from iCalendar, RSS and Atom feeds.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

// Default confidences by feed kind.
const (
	DefaultICalConfidence = 0.8
	DefaultRSSConfidence  = 0.6
)

// Options are read from the source config.
type Options struct {
	FeedURL    string  `mapstructure:"feed_url"`
	Timezone   string  `mapstructure:"timezone"`
	Confidence float64 `mapstructure:"confidence"`
	MaxItems   int     `mapstructure:"max_items"`
	// UsePublishedDate treats an RSS item's publish date as the event date. Only for
	// feeds known to publish on the day of the event.
	UsePublishedDate bool `mapstructure:"use_published_date"`
}

// Adapter reads a source's calendar or syndication feed.
type Adapter struct {
	fetcher adapter.Fetcher
	log     logger.Logger
}

// New creates a feed Adapter.
func New(fetcher adapter.Fetcher, log logger.Logger) *Adapter {
	return &Adapter{fetcher: fetcher, log: log}
}

// Factory returns an adapter.Factory for feed sources.
func Factory(fetcher adapter.Fetcher, log logger.Logger) adapter.Factory {
	a := New(fetcher, log)
	return func(*domain.Source) (adapter.Adapter, error) { return a, nil }
}

// Extract implements adapter.Adapter.
func (a *Adapter) Extract(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error) {
	var opts Options
	if err := adapter.DecodeOptions(src, &opts); err != nil {
		return nil, crawlerr.Parse(err, src.URL)
	}

	feedURL := FeedURL(src, opts)
	resp, err := a.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var candidates []domain.RawEventCandidate
	if isCalendar(resp.Body) {
		candidates, err = parseICal(resp.Body, opts, logger.FromContext(ctx, a.log))
	} else {
		candidates, err = parseSyndication(ctx, resp.Text(), opts)
	}
	if err != nil {
		return nil, crawlerr.Parse(err, feedURL)
	}

	if opts.MaxItems > 0 && len(candidates) > opts.MaxItems {
		candidates = candidates[:opts.MaxItems]
	}
	adapter.ApplyVenueDefaults(src, candidates)
	return candidates, nil
}

// FeedURL picks the configured feed URL, then the one the classifier confirmed, then the source URL.
func FeedURL(src *domain.Source, opts Options) string {
	if opts.FeedURL != "" {
		return opts.FeedURL
	}
	if u, ok := src.Signal("feed_url"); ok && u != "" {
		return u
	}
	return src.URL
}

func isCalendar(body []byte) bool {
	head := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	return len(head) >= 15 && strings.EqualFold(string(head[:15]), "BEGIN:VCALENDAR")
}

func parseSyndication(ctx context.Context, body string, opts Options) ([]domain.RawEventCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	confidence := opts.Confidence
	if confidence == 0 {
		confidence = DefaultRSSConfidence
	}

	out := make([]domain.RawEventCandidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		c := domain.RawEventCandidate{
			Title:       adapter.CleanText(item.Title),
			Description: adapter.CleanText(firstNonEmpty(item.Description, item.Content)),
			SourceURL:   item.Link,
			Tags:        domain.NormalizeTags(item.Categories),
			Confidence:  confidence,
		}
		if item.Image != nil {
			c.ImageURL = item.Image.URL
		}
		applyEventExtension(&c, item)
		if c.StartDate.IsZero() && opts.UsePublishedDate && item.PublishedParsed != nil {
			c.StartDate, c.StartTime = domain.SplitDateTime(*item.PublishedParsed, true)
		}
		out = append(out, c)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
