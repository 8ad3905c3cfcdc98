package feed

import (
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/dateparse"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

// eventNamespaces are RSS extension prefixes used by calendar plugins for event metadata
// (RSS 1.0 mod_event as "ev", The Events Calendar as "tribe").
var eventNamespaces = []string{"ev", "event", "tribe"}

func applyEventExtension(c *domain.RawEventCandidate, item *gofeed.Item) {
	for _, ns := range eventNamespaces {
		fields, ok := item.Extensions[ns]
		if !ok {
			continue
		}
		if start := extValue(fields, "startdate", "event_start_date", "start"); start != "" {
			if r, err := dateparse.Parse(start); err == nil {
				c.StartDate, c.StartTime = r.Date, r.Time
			}
		}
		if end := extValue(fields, "enddate", "event_end_date", "end"); end != "" {
			if r, err := dateparse.Parse(end); err == nil {
				c.EndDate, c.EndTime = &r.Date, r.Time
			}
		}
		if loc := extValue(fields, "location", "venue"); loc != "" && c.VenueName == "" {
			c.VenueName = loc
		}
		return
	}
}

func extValue(fields map[string][]ext.Extension, names ...string) string {
	for _, n := range names {
		if vals, ok := fields[n]; ok && len(vals) > 0 && vals[0].Value != "" {
			return vals[0].Value
		}
	}
	return ""
}
