// Package htmlsel extracts events from server-rendered listing pages with colly and CSS selectors.
package htmlsel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const (
	DefaultConfidence = 0.7
	defaultMaxPages   = 5
	defaultTimeout    = 30 * time.Second
)

// Config holds collector settings shared by all sources.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Delay between requests to the same host.
	Delay        time.Duration
	MaxBodyBytes int
}

// Options are read from the source config.
type Options struct {
	EventsURL  string    `mapstructure:"events_url"`
	Selectors  Selectors `mapstructure:"selectors"`
	MaxPages   int       `mapstructure:"max_pages"`
	Confidence float64   `mapstructure:"confidence"`
}

// Adapter scrapes listing pages.
type Adapter struct {
	cfg Config
	log logger.Logger
}

// New creates an htmlsel Adapter.
func New(cfg Config, log logger.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Adapter{cfg: cfg, log: log}
}

// Factory returns an adapter.Factory for html sources.
func Factory(cfg Config, log logger.Logger) adapter.Factory {
	a := New(cfg, log)
	return func(*domain.Source) (adapter.Adapter, error) { return a, nil }
}

// Extract implements adapter.Adapter. Pagination follows the Next selector up to MaxPages.
func (a *Adapter) Extract(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error) {
	var opts Options
	if err := adapter.DecodeOptions(src, &opts); err != nil {
		return nil, crawlerr.Parse(err, src.URL)
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.Confidence == 0 {
		opts.Confidence = DefaultConfidence
	}
	sel := opts.Selectors.WithDefaults()
	start := src.URL
	if opts.EventsURL != "" {
		start = opts.EventsURL
	}

	c, err := a.collector(ctx, opts.MaxPages)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		out      []domain.RawEventCandidate
		firstErr error
		pages    int
	)

	c.OnHTML("html", func(e *colly.HTMLElement) {
		found := ExtractSelection(e.DOM, e.Request.URL, sel, opts.Confidence)
		mu.Lock()
		out = append(out, found...)
		pages++
		mu.Unlock()

		if next := NextPage(e.DOM, e.Request.URL, sel.Next); next != "" {
			if visitErr := e.Request.Visit(next); visitErr != nil && !ignorableVisitErr(visitErr) {
				logger.FromContext(ctx, a.log).Debug("Not following next page",
					logger.String("url", next),
					logger.Error(visitErr),
				)
			}
		}
	})

	c.OnError(func(r *colly.Response, reqErr error) {
		pageURL := r.Request.URL.String()
		var classified error
		if r.StatusCode > 0 {
			classified = crawlerr.FromHTTPStatus(r.StatusCode, pageURL)
		} else {
			classified = crawlerr.Network(reqErr, pageURL)
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = classified
		}
		mu.Unlock()
	})

	if visitErr := c.Visit(start); visitErr != nil && firstErr == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, crawlerr.Network(visitErr, start)
	}
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	adapter.ApplyVenueDefaults(src, out)
	if firstErr != nil && (pages == 0 || crawlerr.IsRateLimited(firstErr)) {
		return out, firstErr
	}
	if firstErr != nil {
		logger.FromContext(ctx, a.log).Warn("Listing page failed after earlier pages succeeded",
			logger.Error(firstErr),
		)
	}
	return out, nil
}

func (a *Adapter) collector(ctx context.Context, maxPages int) (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.MaxDepth(maxPages),
	}
	if a.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(a.cfg.UserAgent))
	}
	if a.cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(a.cfg.MaxBodyBytes))
	}

	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(a.cfg.Timeout)
	if a.cfg.Delay > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, Delay: a.cfg.Delay}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func ignorableVisitErr(err error) bool {
	var visited *colly.AlreadyVisitedError
	return errors.As(err, &visited) || errors.Is(err, colly.ErrMaxDepth)
}
