// Package llm extracts events from pages no structured method covers by asking a language
// model to read the page's main content.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const (
	DefaultConfidence    = 0.5
	defaultMaxInputChars = 24000
	// below this the readability article is assumed to have missed the listing
	minArticleChars = 200
)

const systemPrompt = `You extract upcoming events from web page content.
Reply with a JSON array only. Each element has the keys:
title, description, start_date (YYYY-MM-DD), start_time (HH:MM 24h or null),
end_date (YYYY-MM-DD or null), end_time (HH:MM or null), venue_name, venue_address,
price_min (number or null), price_max (number or null), is_free (boolean or null),
ticket_url, image_url, tags (array of strings).
Only include events that are explicitly listed with a date. Never invent values; use null.
Reply [] when the page lists no events.`

// Options are read from the source config.
type Options struct {
	EventsURL  string  `mapstructure:"events_url"`
	Hint       string  `mapstructure:"hint"`
	Confidence float64 `mapstructure:"confidence"`
}

// Adapter is the llm_crawler method adapter.
type Adapter struct {
	fetcher       adapter.Fetcher
	completer     Completer
	markdown      *converter.Converter
	maxInputChars int
	log           logger.Logger
}

// New creates an llm Adapter.
func New(fetcher adapter.Fetcher, completer Completer, maxInputChars int, log logger.Logger) *Adapter {
	if maxInputChars <= 0 {
		maxInputChars = defaultMaxInputChars
	}
	return &Adapter{
		fetcher:   fetcher,
		completer: completer,
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		maxInputChars: maxInputChars,
		log:           log,
	}
}

// Factory returns an adapter.Factory for llm_crawler and unknown sources. Without an API key
// the factory fails so the source is reported as having no usable adapter.
func Factory(fetcher adapter.Fetcher, cfg Config, log logger.Logger) adapter.Factory {
	completer, err := NewAnthropicCompleter(cfg)
	if err != nil {
		return func(*domain.Source) (adapter.Adapter, error) { return nil, err }
	}
	a := New(fetcher, completer, cfg.MaxInputChars, log)
	return func(*domain.Source) (adapter.Adapter, error) { return a, nil }
}

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

	resp, err := a.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	pageURL := resp.FinalURL
	if pageURL == "" {
		pageURL = target
	}

	content, err := a.pageMarkdown(resp.Body, pageURL)
	if err != nil {
		return nil, crawlerr.Parse(err, pageURL)
	}

	prompt := buildPrompt(src, pageURL, opts.Hint, content)
	reply, err := a.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, crawlerr.Network(fmt.Errorf("llm: %w", err), pageURL)
	}

	out, err := ParseReply(reply, pageURL, opts.Confidence)
	if err != nil {
		return nil, crawlerr.Parse(err, pageURL)
	}
	logger.FromContext(ctx, a.log).Debug("Model extraction finished",
		logger.Int("prompt_chars", len(prompt)),
		logger.Int("candidates", len(out)),
	)
	adapter.ApplyVenueDefaults(src, out)
	return out, nil
}

// pageMarkdown reduces the page to its main content as markdown, falling back to the
// whole document when readability finds too little.
func (a *Adapter) pageMarkdown(body []byte, pageURL string) (string, error) {
	html := string(body)
	if u, err := url.Parse(pageURL); err == nil {
		if article, readErr := readability.FromReader(bytes.NewReader(body), u); readErr == nil &&
			len(strings.TrimSpace(article.TextContent)) >= minArticleChars {
			html = article.Content
		}
	}

	md, err := a.markdown.ConvertString(html, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if runes := []rune(md); len(runes) > a.maxInputChars {
		md = string(runes[:a.maxInputChars])
	}
	return md, nil
}

func buildPrompt(src *domain.Source, pageURL, hint, content string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Page: %s\n", pageURL)
	if src.Name != "" {
		fmt.Fprintf(&sb, "Site: %s\n", src.Name)
	}
	if venue := src.ConfigString("venue_name"); venue != "" {
		fmt.Fprintf(&sb, "Default venue: %s\n", venue)
	}
	if hint != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", hint)
	}
	sb.WriteString("\n---\n")
	sb.WriteString(content)
	return sb.String()
}
