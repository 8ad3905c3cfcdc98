package feed

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const (
	icalDateLayout     = "20060102"
	icalDateTimeLayout = "20060102T150405"
)

var icalUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

func parseICal(body []byte, opts Options, log logger.Logger) ([]domain.RawEventCandidate, error) {
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var loc *time.Location
	if opts.Timezone != "" {
		loc, err = time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", opts.Timezone, err)
		}
	}

	confidence := opts.Confidence
	if confidence == 0 {
		confidence = DefaultICalConfidence
	}

	events := cal.Events()
	out := make([]domain.RawEventCandidate, 0, len(events))
	for _, ev := range events {
		if strings.EqualFold(prop(ev, ics.ComponentPropertyStatus), "CANCELLED") {
			continue
		}

		c := domain.RawEventCandidate{
			Title:       prop(ev, ics.ComponentPropertySummary),
			Description: adapter.CleanText(prop(ev, ics.ComponentPropertyDescription)),
			VenueName:   venueFromLocation(prop(ev, ics.ComponentPropertyLocation)),
			SourceURL:   prop(ev, ics.ComponentPropertyUrl),
			Tags:        domain.NormalizeTags(strings.Split(prop(ev, ics.ComponentPropertyCategories), ",")),
			Confidence:  confidence,
		}

		if p := ev.GetProperty(ics.ComponentPropertyDtStart); p != nil {
			date, hhmm, allDay, parseErr := icalTime(p, loc)
			if parseErr != nil {
				log.Warn("Skipping calendar entry with bad DTSTART",
					logger.String("summary", c.Title),
					logger.Error(parseErr),
				)
				continue
			}
			c.StartDate, c.StartTime, c.IsAllDay = date, hhmm, allDay
		}
		if p := ev.GetProperty(ics.ComponentPropertyDtEnd); p != nil {
			if date, hhmm, allDay, endErr := icalTime(p, loc); endErr == nil {
				if allDay {
					// DTEND is exclusive for all-day events
					date = date.AddDate(0, 0, -1)
				}
				c.EndDate, c.EndTime = &date, hhmm
			}
		}

		out = append(out, c)
	}
	return out, nil
}

func prop(ev *ics.VEvent, name ics.ComponentProperty) string {
	p := ev.GetProperty(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(icalUnescaper.Replace(p.Value))
}

// icalTime parses DATE and DATE-TIME values. UTC times are moved to loc when one is configured;
// floating and TZID-qualified times keep their wall clock.
func icalTime(p *ics.IANAProperty, loc *time.Location) (time.Time, *string, bool, error) {
	value := strings.TrimSpace(p.Value)
	isDate := len(value) == len(icalDateLayout)
	if v, ok := p.ICalParameters["VALUE"]; ok && len(v) > 0 && strings.EqualFold(v[0], "DATE") {
		isDate = true
	}

	if isDate {
		t, err := time.Parse(icalDateLayout, value[:min(len(value), len(icalDateLayout))])
		if err != nil {
			return time.Time{}, nil, false, err
		}
		return t, nil, true, nil
	}

	utc := strings.HasSuffix(value, "Z")
	t, err := time.Parse(icalDateTimeLayout, strings.TrimSuffix(value, "Z"))
	if err != nil {
		return time.Time{}, nil, false, err
	}
	if utc && loc != nil {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC).In(loc)
	}
	date, hhmm := domain.SplitDateTime(t, true)
	return date, hhmm, false, nil
}

// venueFromLocation keeps the first line or comma segment of a LOCATION, which is usually the venue name.
func venueFromLocation(location string) string {
	if i := strings.IndexAny(location, "\n,"); i > 0 {
		return strings.TrimSpace(location[:i])
	}
	return location
}
