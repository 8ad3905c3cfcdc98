package schemaorg

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/dateparse"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

// ToCandidate converts e into a candidate, resolving relative URLs against base.
func (e *Event) ToCandidate(base *url.URL, confidence float64) (domain.RawEventCandidate, error) {
	start, err := dateparse.Parse(e.StartDate)
	if err != nil {
		return domain.RawEventCandidate{}, fmt.Errorf("startDate: %w", err)
	}

	c := domain.RawEventCandidate{
		Title:        e.Name,
		Description:  e.Description,
		StartDate:    start.Date,
		StartTime:    start.Time,
		VenueName:    e.Location.Name,
		VenueAddress: e.Location.Address,
		TicketURL:    resolve(base, e.TicketURL()),
		SourceURL:    resolve(base, e.URL),
		ImageURL:     resolve(base, e.Image),
		Tags:         domain.NormalizeTags(e.Keywords),
		Confidence:   confidence,
	}
	if c.TicketURL == "" {
		c.TicketURL = c.SourceURL
	}

	if e.EndDate != "" {
		if end, endErr := dateparse.Parse(e.EndDate); endErr == nil {
			c.EndDate = &end.Date
			c.EndTime = end.Time
		}
	}

	c.PriceMin, c.PriceMax, c.IsFree = e.priceRange()
	return c, nil
}

func (e *Event) priceRange() (lowest, highest *float64, free *bool) {
	for _, o := range e.Offers {
		for _, raw := range []string{o.Price, o.LowPrice, o.HighPrice} {
			p, ok := parsePrice(raw)
			if !ok {
				continue
			}
			if lowest == nil || p < *lowest {
				v := p
				lowest = &v
			}
			if highest == nil || p > *highest {
				v := p
				highest = &v
			}
		}
	}
	if highest != nil {
		isFree := *highest == 0
		free = &isFree
	}
	return lowest, highest, free
}

func parsePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.TrimLeft(raw, "$€£"))
	if raw == "" {
		return 0, false
	}
	if strings.EqualFold(raw, "free") {
		return 0, true
	}
	p, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || p < 0 {
		return 0, false
	}
	return p, true
}

func resolve(base *url.URL, href string) string {
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
