// Package apijson extracts events from JSON APIs using gjson paths. Unset paths default to
// the WordPress Events Calendar REST layout, the most common venue API.
package apijson

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/dateparse"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const (
	DefaultConfidence = 0.85
	defaultMaxPages   = 10
)

var errInvalidJSON = errors.New("response is not valid JSON")

// Fields maps candidate fields to gjson paths relative to one item.
type Fields struct {
	Title        string `mapstructure:"title"`
	Description  string `mapstructure:"description"`
	Start        string `mapstructure:"start"`
	End          string `mapstructure:"end"`
	AllDay       string `mapstructure:"all_day"`
	VenueName    string `mapstructure:"venue_name"`
	VenueAddress string `mapstructure:"venue_address"`
	URL          string `mapstructure:"url"`
	TicketURL    string `mapstructure:"ticket_url"`
	Image        string `mapstructure:"image"`
	Cost         string `mapstructure:"cost"`
	Prices       string `mapstructure:"prices"`
	Tags         string `mapstructure:"tags"`
}

// Options are read from the source config.
type Options struct {
	Endpoint   string  `mapstructure:"endpoint"`
	ItemsPath  string  `mapstructure:"items_path"`
	NextPath   string  `mapstructure:"next_path"`
	MaxPages   int     `mapstructure:"max_pages"`
	Confidence float64 `mapstructure:"confidence"`
	Fields     Fields  `mapstructure:"fields"`
}

// tribeFields is the Events Calendar REST item layout.
var tribeFields = Fields{
	Title:        "title",
	Description:  "description",
	Start:        "start_date",
	End:          "end_date",
	AllDay:       "all_day",
	VenueName:    "venue.venue",
	VenueAddress: "venue.address",
	URL:          "url",
	TicketURL:    "website",
	Image:        "image.url",
	Cost:         "cost",
	Prices:       "cost_details.values",
	Tags:         "categories.#.name",
}

func (o *Options) setDefaults(src *domain.Source) {
	if o.Endpoint == "" {
		o.Endpoint = src.URL
	}
	if o.ItemsPath == "" {
		o.ItemsPath = "events"
	}
	if o.NextPath == "" {
		o.NextPath = "next_rest_url"
	}
	if o.MaxPages <= 0 {
		o.MaxPages = defaultMaxPages
	}
	if o.Confidence == 0 {
		o.Confidence = DefaultConfidence
	}
	f := &o.Fields
	for _, pair := range []struct {
		dst *string
		def string
	}{
		{&f.Title, tribeFields.Title},
		{&f.Description, tribeFields.Description},
		{&f.Start, tribeFields.Start},
		{&f.End, tribeFields.End},
		{&f.AllDay, tribeFields.AllDay},
		{&f.VenueName, tribeFields.VenueName},
		{&f.VenueAddress, tribeFields.VenueAddress},
		{&f.URL, tribeFields.URL},
		{&f.TicketURL, tribeFields.TicketURL},
		{&f.Image, tribeFields.Image},
		{&f.Cost, tribeFields.Cost},
		{&f.Prices, tribeFields.Prices},
		{&f.Tags, tribeFields.Tags},
	} {
		if *pair.dst == "" {
			*pair.dst = pair.def
		}
	}
}

// Adapter reads a paginated JSON events API.
type Adapter struct {
	fetcher adapter.Fetcher
	log     logger.Logger
}

// New creates an apijson Adapter.
func New(fetcher adapter.Fetcher, log logger.Logger) *Adapter {
	return &Adapter{fetcher: fetcher, log: log}
}

// Factory returns an adapter.Factory for api sources.
func Factory(fetcher adapter.Fetcher, log logger.Logger) adapter.Factory {
	a := New(fetcher, log)
	return func(*domain.Source) (adapter.Adapter, error) { return a, nil }
}

// Extract implements adapter.Adapter, following next-page links up to MaxPages.
func (a *Adapter) Extract(ctx context.Context, src *domain.Source) ([]domain.RawEventCandidate, error) {
	var opts Options
	if err := adapter.DecodeOptions(src, &opts); err != nil {
		return nil, crawlerr.Parse(err, src.URL)
	}
	opts.setDefaults(src)

	var out []domain.RawEventCandidate
	seen := make(map[string]struct{})
	next := opts.Endpoint
	for page := 0; next != "" && page < opts.MaxPages; page++ {
		if _, dup := seen[next]; dup {
			break
		}
		seen[next] = struct{}{}

		resp, err := a.fetcher.Fetch(ctx, next)
		if err != nil {
			if page > 0 && !crawlerr.IsRateLimited(err) {
				logger.FromContext(ctx, a.log).Warn("Stopping pagination",
					logger.String("url", next),
					logger.Error(err),
				)
				break
			}
			adapter.ApplyVenueDefaults(src, out)
			return out, err
		}
		if !gjson.ValidBytes(resp.Body) {
			return out, crawlerr.Parse(errInvalidJSON, next)
		}

		root := gjson.ParseBytes(resp.Body)
		items := root
		if opts.ItemsPath != "@this" {
			items = root.Get(opts.ItemsPath)
		}
		if !items.Exists() && root.IsArray() {
			items = root
		}
		for _, item := range items.Array() {
			out = append(out, toCandidate(item, resp.FinalURL, opts))
		}

		next = resolveNext(resp.FinalURL, root.Get(opts.NextPath).String())
	}

	adapter.ApplyVenueDefaults(src, out)
	return out, nil
}

func toCandidate(item gjson.Result, base string, opts Options) domain.RawEventCandidate {
	f := opts.Fields
	c := domain.RawEventCandidate{
		Title:        adapter.CleanText(item.Get(f.Title).String()),
		Description:  adapter.CleanText(item.Get(f.Description).String()),
		IsAllDay:     item.Get(f.AllDay).Bool(),
		VenueName:    adapter.CleanText(item.Get(f.VenueName).String()),
		VenueAddress: adapter.CleanText(item.Get(f.VenueAddress).String()),
		SourceURL:    resolveNext(base, item.Get(f.URL).String()),
		TicketURL:    resolveNext(base, item.Get(f.TicketURL).String()),
		ImageURL:     resolveNext(base, item.Get(f.Image).String()),
		Confidence:   opts.Confidence,
	}
	if c.TicketURL == "" {
		c.TicketURL = c.SourceURL
	}

	if r, err := dateparse.Parse(item.Get(f.Start).String()); err == nil {
		c.StartDate = r.Date
		if !c.IsAllDay {
			c.StartTime = r.Time
		}
	}
	if r, err := dateparse.Parse(item.Get(f.End).String()); err == nil {
		c.EndDate = &r.Date
		if !c.IsAllDay {
			c.EndTime = r.Time
		}
	}

	var tags []string
	for _, t := range item.Get(f.Tags).Array() {
		tags = append(tags, t.String())
	}
	c.Tags = domain.NormalizeTags(tags)

	c.PriceMin, c.PriceMax, c.IsFree = prices(item.Get(f.Prices), item.Get(f.Cost).String())
	return c
}

// prices reads numeric price values, falling back to the display cost string.
func prices(values gjson.Result, cost string) (lowest, highest *float64, free *bool) {
	var nums []float64
	for _, v := range values.Array() {
		if n, err := strconv.ParseFloat(strings.ReplaceAll(v.String(), ",", ""), 64); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return adapter.ParsePriceText(cost)
	}
	return adapter.PriceRange(nums)
}

func resolveNext(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}
