package llm

import (
	"errors"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/dateparse"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

var errNoJSONArray = errors.New("model reply contains no JSON array")

// ParseReply reads the JSON array from a model reply. Prose or code fences around the
// array are ignored; entries with an unreadable start_date keep a zero date.
func ParseReply(reply, pageURL string, confidence float64) ([]domain.RawEventCandidate, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, errNoJSONArray
	}
	raw := reply[start : end+1]
	if !gjson.Valid(raw) {
		return nil, errNoJSONArray
	}

	base, _ := url.Parse(pageURL)
	items := gjson.Parse(raw).Array()
	out := make([]domain.RawEventCandidate, 0, len(items))
	for _, item := range items {
		c := domain.RawEventCandidate{
			Title:        adapter.CleanText(item.Get("title").String()),
			Description:  adapter.CleanText(item.Get("description").String()),
			VenueName:    strings.TrimSpace(item.Get("venue_name").String()),
			VenueAddress: strings.TrimSpace(item.Get("venue_address").String()),
			TicketURL:    absolute(base, item.Get("ticket_url").String()),
			ImageURL:     absolute(base, item.Get("image_url").String()),
			SourceURL:    pageURL,
			Confidence:   confidence,
		}

		if r, err := dateparse.Parse(item.Get("start_date").String()); err == nil {
			c.StartDate, c.StartTime = r.Date, r.Time
		}
		if c.StartTime == nil {
			if clock, err := dateparse.ParseClock(item.Get("start_time").String()); err == nil {
				c.StartTime = clock
			}
		}
		if r, err := dateparse.Parse(item.Get("end_date").String()); err == nil {
			c.EndDate = &r.Date
			if clock, clockErr := dateparse.ParseClock(item.Get("end_time").String()); clockErr == nil {
				c.EndTime = clock
			}
		}

		if v := item.Get("price_min"); v.Type == gjson.Number {
			n := v.Float()
			c.PriceMin = &n
		}
		if v := item.Get("price_max"); v.Type == gjson.Number {
			n := v.Float()
			c.PriceMax = &n
		}
		if v := item.Get("is_free"); v.IsBool() {
			b := v.Bool()
			c.IsFree = &b
		}

		var tags []string
		for _, t := range item.Get("tags").Array() {
			tags = append(tags, t.String())
		}
		c.Tags = domain.NormalizeTags(tags)

		out = append(out, c)
	}
	return out, nil
}

func absolute(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
