package classifier

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/schemaorg"
)

func (c *Classifier) apiRule(_ context.Context, p *probe, _ bool) (domain.IntegrationMethod, bool) {
	matched := false
	if ct := strings.ToLower(p.resp.ContentType); strings.Contains(ct, "json") {
		p.record(SignalContentTypeJSON, ct, true)
		matched = true
	}
	path := strings.ToLower(p.final.Path)
	for _, pattern := range c.cfg.APIPathPatterns {
		if strings.Contains(path, pattern) {
			p.record(SignalAPIPath, pattern, !matched)
			matched = true
			break
		}
	}
	return domain.MethodAPI, matched
}

func (c *Classifier) aggregatorRule(_ context.Context, p *probe, _ bool) (domain.IntegrationMethod, bool) {
	if d := c.aggregatorDomain(p.final.Hostname()); d != "" {
		p.record(SignalAggregatorHost, d, true)
		return domain.MethodAggregator, true
	}

	matched := false
	p.doc.Find("iframe[src], script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if d := c.aggregatorDomain(hostOf(p.final, src)); d != "" {
			p.record(SignalAggregatorEmbed, d, true)
			matched = true
			return false
		}
		return true
	})
	if matched {
		return domain.MethodAggregator, true
	}

	// Ticket links to an aggregator are common on venue sites and do not decide anything.
	seen := map[string]bool{}
	p.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if d := c.aggregatorDomain(hostOf(p.final, href)); d != "" && !seen[d] {
			seen[d] = true
			p.record(SignalAggregatorLink, d, false)
		}
	})
	return "", false
}

func (c *Classifier) aggregatorDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return ""
	}
	for _, d := range c.cfg.AggregatorDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d
		}
	}
	return ""
}

func (c *Classifier) feedRule(ctx context.Context, p *probe, decided bool) (domain.IntegrationMethod, bool) {
	if kind := sniffFeed(p.resp.Body); kind != "" {
		p.record(SignalFeedSniff, kind, true)
		p.record(SignalFeedURL, p.final.String(), false)
		return domain.MethodFeed, true
	}

	links := discoverFeedLinks(p.doc, p.final)
	for _, l := range links {
		p.record(SignalFeedLink, l, false)
	}
	if decided {
		return "", false
	}

	for i, link := range links {
		if i >= c.cfg.MaxFeedProbes {
			break
		}
		resp, err := c.fetcher.Fetch(ctx, link)
		if err != nil {
			continue
		}
		if kind := sniffFeed(resp.Body); kind != "" {
			p.record(SignalFeedURL, link, true)
			p.record(SignalFeedSniff, kind, false)
			return domain.MethodFeed, true
		}
	}
	return "", false
}

func (c *Classifier) structuredDataRule(_ context.Context, p *probe, _ bool) (domain.IntegrationMethod, bool) {
	events := schemaorg.ExtractDocument(p.doc)
	if len(events) == 0 {
		return "", false
	}

	complete := 0
	for i := range events {
		if events[i].IsComplete() {
			complete++
		}
	}
	if complete > 0 {
		p.record(SignalJSONLDComplete, fmt.Sprintf("%d/%d events", complete, len(events)), true)
		return domain.MethodJSONLD, true
	}
	p.record(SignalJSONLDPartial, fmt.Sprintf("%d events", len(events)), true)
	return domain.MethodHTML, true
}

var (
	emptyMount = regexp.MustCompile(`<div[^>]+id=["'](root|app|__next|__nuxt)["'][^>]*>\s*</div>`)
	spaMarkers = []string{
		"__next_data__",
		`id="__next"`,
		"data-reactroot",
		"ng-version",
		"__nuxt__",
		"data-v-app",
		"data-server-rendered",
		"you need to enable javascript",
		"please enable javascript",
	}
	// Match updates the matcher's hit counters, so calls are serialised.
	spaMatcher   = ahocorasick.NewStringMatcher(spaMarkers)
	spaMatcherMu sync.Mutex
)

// spaMarker returns the earliest listed SPA marker found in lower, if any.
func spaMarker(lower string) (string, bool) {
	spaMatcherMu.Lock()
	hits := spaMatcher.Match([]byte(lower))
	spaMatcherMu.Unlock()
	if len(hits) == 0 {
		return "", false
	}
	return spaMarkers[slices.Min(hits)], true
}

func (c *Classifier) clientRenderedRule(_ context.Context, p *probe, _ bool) (domain.IntegrationMethod, bool) {
	chars, ratio := visibleText(p.doc, len(p.resp.Body))
	p.record(SignalTextRatio, fmt.Sprintf("%.3f (%d chars)", ratio, chars), false)

	if ratio >= c.cfg.MinTextRatio {
		return "", false
	}
	if loc := emptyMount.FindString(p.lower); loc != "" {
		p.record(SignalSPAShell, loc, true)
		return domain.MethodPlaywright, true
	}
	if marker, ok := spaMarker(p.lower); ok {
		p.record(SignalSPAShell, marker, true)
		return domain.MethodPlaywright, true
	}
	return "", false
}

func (c *Classifier) staticTextRule(_ context.Context, p *probe, _ bool) (domain.IntegrationMethod, bool) {
	chars, ratio := visibleText(p.doc, len(p.resp.Body))
	if chars >= c.cfg.MinTextChars && ratio >= c.cfg.MinTextRatio {
		p.record(SignalStaticText, fmt.Sprintf("%d chars", chars), true)
		return domain.MethodHTML, true
	}
	return "", false
}

// visibleText returns the count of visible text bytes in the body and its ratio to the page size.
func visibleText(doc *goquery.Document, total int) (int, float64) {
	if total == 0 {
		return 0, 0
	}
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template, svg").Remove()
	text := strings.Join(strings.Fields(body.Text()), " ")
	return len(text), float64(len(text)) / float64(total)
}

func hostOf(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).Hostname()
}
