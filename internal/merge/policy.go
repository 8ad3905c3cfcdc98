package merge

import (
	"time"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

// Merge folds candidate c, observed from a source with the given id and priority, into stored.
// It returns the merged event and the patch of columns that changed. stored is not modified.
//
// Empty fields are filled. Prices, free flag and ticket URL follow the newest observation.
// Other populated fields change only on strictly higher confidence; title, description and
// image also change for a strictly higher priority source. Values are never cleared.
func Merge(stored *domain.Event, c *domain.RawEventCandidate, sourceID string, priority int, now time.Time) (*domain.Event, store.Patch) {
	m := &merger{
		out:        stored.Clone(),
		patch:      store.Patch{},
		higherConf: c.Confidence > stored.Confidence,
		higherPrio: priority > stored.SourcePriority,
	}
	out := m.out

	m.text(store.ColTitle, &out.Title, c.Title, true)
	m.text(store.ColDescription, &out.Description, c.Description, true)
	m.text(store.ColImageURL, &out.ImageURL, c.ImageURL, true)
	m.text(store.ColVenueName, &out.VenueName, c.VenueName, false)
	m.text(store.ColVenueAddress, &out.VenueAddress, c.VenueAddress, false)
	m.text(store.ColSourceURL, &out.SourceURL, c.SourceURL, false)
	m.optString(store.ColVenueID, &out.VenueID, c.VenueID)

	m.volatileText(store.ColTicketURL, &out.TicketURL, c.TicketURL)
	m.volatileFloat(store.ColPriceMin, &out.PriceMin, c.PriceMin)
	m.volatileFloat(store.ColPriceMax, &out.PriceMax, c.PriceMax)
	if c.IsFree != nil && (out.IsFree == nil || *out.IsFree != *c.IsFree) {
		v := *c.IsFree
		out.IsFree = &v
		m.patch[store.ColIsFree] = out.IsFree
	}

	m.startTime(c)
	m.optString(store.ColEndTime, &out.EndTime, c.EndTime)
	if c.EndDate != nil && (out.EndDate == nil || (m.higherConf && !out.EndDate.Equal(domain.DateOnly(*c.EndDate)))) {
		d := domain.DateOnly(*c.EndDate)
		out.EndDate = &d
		m.patch[store.ColEndDate] = out.EndDate
	}

	if tags := domain.NormalizeTags(append(append([]string(nil), out.Tags...), c.Tags...)); len(tags) != len(out.Tags) {
		out.Tags = pq.StringArray(tags)
		m.patch[store.ColTags] = out.Tags
	}

	if m.higherConf {
		out.Confidence = c.Confidence
		m.patch[store.ColConfidence] = out.Confidence
	}
	if m.higherPrio && sourceID != "" {
		out.SourceID = sourceID
		out.SourcePriority = priority
		m.patch[store.ColSourceID] = out.SourceID
		m.patch[store.ColSourcePriority] = out.SourcePriority
	}

	out.LastSeenAt = now
	m.patch[store.ColLastSeenAt] = now
	return out, m.patch
}

type merger struct {
	out        *domain.Event
	patch      store.Patch
	higherConf bool
	higherPrio bool
}

func (m *merger) text(col string, dst *string, v string, descriptive bool) {
	if v == "" || v == *dst {
		return
	}
	if *dst == "" || m.higherConf || (descriptive && m.higherPrio) {
		*dst = v
		m.patch[col] = v
	}
}

func (m *merger) volatileText(col string, dst *string, v string) {
	if v != "" && v != *dst {
		*dst = v
		m.patch[col] = v
	}
}

func (m *merger) volatileFloat(col string, dst **float64, v *float64) {
	if v == nil || (*dst != nil && **dst == *v) {
		return
	}
	n := *v
	*dst = &n
	m.patch[col] = *dst
}

func (m *merger) optString(col string, dst **string, v *string) {
	if v == nil || *v == "" || (*dst != nil && **dst == *v) {
		return
	}
	if *dst == nil || m.higherConf {
		s := *v
		*dst = &s
		m.patch[col] = *dst
	}
}

// startTime fills an unknown time, clearing the all-day flag. A known time changes only on
// higher confidence and never goes back to unknown.
func (m *merger) startTime(c *domain.RawEventCandidate) {
	out := m.out
	if c.StartTime != nil && *c.StartTime != "" {
		if out.StartTime == nil || (m.higherConf && *out.StartTime != *c.StartTime) {
			t := *c.StartTime
			out.StartTime = &t
			m.patch[store.ColStartTime] = out.StartTime
			if out.IsAllDay {
				out.IsAllDay = false
				m.patch[store.ColIsAllDay] = false
			}
		}
		return
	}
	if c.IsAllDay && !out.IsAllDay && out.StartTime == nil {
		out.IsAllDay = true
		m.patch[store.ColIsAllDay] = true
	}
}
