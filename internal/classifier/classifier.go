// Package classifier probes a source URL and recommends the extraction strategy for it.
package classifier

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

// Signal names recorded in Result.Signals.
const (
	SignalContentTypeJSON = "content_type_json"
	SignalAPIPath         = "api_path"
	SignalAggregatorHost  = "aggregator_host"
	SignalAggregatorEmbed = "aggregator_embed"
	SignalAggregatorLink  = "aggregator_link"
	SignalFeedSniff       = "feed_sniff"
	SignalFeedLink        = "feed_link"
	SignalFeedURL         = "feed_url"
	SignalJSONLDComplete  = "jsonld_complete"
	SignalJSONLDPartial   = "jsonld_partial"
	SignalTextRatio       = "text_ratio"
	SignalSPAShell        = "spa_shell"
	SignalStaticText      = "static_text"
	SignalFallback        = "fallback"
)

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Result is a classification with its supporting evidence.
type Result struct {
	URL      string
	FinalURL string
	Method   domain.IntegrationMethod
	Signals  domain.Signals
	ProbedAt time.Time
}

// Classifier recommends an integration method for a URL.
type Classifier struct {
	fetcher Fetcher
	cfg     Config
	log     logger.Logger
	now     func() time.Time
}

// New creates a Classifier.
func New(fetcher Fetcher, cfg Config, log logger.Logger) *Classifier {
	cfg.SetDefaults()
	return &Classifier{fetcher: fetcher, cfg: cfg, log: log, now: time.Now}
}

// probe is the state shared by the rules for one classification.
type probe struct {
	resp    *fetch.Response
	final   *url.URL
	doc     *goquery.Document
	lower   string
	signals domain.Signals
}

func (p *probe) record(name, detail string, decisive bool) {
	p.signals = append(p.signals, domain.Signal{Name: name, Detail: detail, Decisive: decisive})
}

// rule inspects the probe. decided is true once an earlier rule has won; a rule must
// then only record evidence and skip any further network requests.
type rule func(ctx context.Context, p *probe, decided bool) (domain.IntegrationMethod, bool)

// Classify fetches rawURL and applies the rules in priority order. A fetch failure
// returns an error and no method, so transient outages never overwrite a cached result.
func (c *Classifier) Classify(ctx context.Context, rawURL string) (*Result, error) {
	resp, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", rawURL, err)
	}

	finalURL := resp.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	final, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("parse final url %q: %w", finalURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text()))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", finalURL, err)
	}

	p := &probe{
		resp:  resp,
		final: final,
		doc:   doc,
		lower: strings.ToLower(resp.Text()),
	}

	rules := []rule{
		c.apiRule,
		c.aggregatorRule,
		c.feedRule,
		c.structuredDataRule,
		c.clientRenderedRule,
		c.staticTextRule,
	}

	method := domain.MethodUnknown
	for _, r := range rules {
		if m, ok := r(ctx, p, method != domain.MethodUnknown); ok && method == domain.MethodUnknown {
			method = m
		}
	}
	if method == domain.MethodUnknown {
		p.record(SignalFallback, "no extractable structure", true)
		method = domain.MethodLLM
	}

	logger.FromContext(ctx, c.log).Debug("Classified source",
		logger.String("url", rawURL),
		logger.String("method", string(method)),
		logger.Int("signals", len(p.signals)),
	)

	return &Result{
		URL:      rawURL,
		FinalURL: finalURL,
		Method:   method,
		Signals:  p.signals,
		ProbedAt: c.now(),
	}, nil
}
