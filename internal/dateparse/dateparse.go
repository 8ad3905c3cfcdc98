// Package dateparse turns the date strings found on event pages and feeds into a
// calendar date plus an optional time of day. The wall-clock date as written is kept;
// values with offsets are not converted to UTC.
package dateparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

// ErrEmpty is returned for blank input.
var ErrEmpty = errors.New("empty date")

// Result is a parsed date.
type Result struct {
	Date time.Time
	// Time is HH:MM, nil when the input carried no time of day.
	Time *string
}

// layouts that include a time of day.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3:04PM",
	"January 2, 2006 at 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04PM",
	"Mon, Jan 2, 2006 3:04 PM",
	"Monday, January 2, 2006 3:04 PM",
	"01/02/2006 3:04 PM",
	"01/02/2006 15:04",
}

// layouts that carry a date only.
var dateLayouts = []string{
	domain.DateLayout,
	"20060102",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Mon, Jan 2, 2006",
	"Monday, January 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"01/02/2006",
}

var (
	spaces   = regexp.MustCompile(`\s+`)
	ordinals = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	// "8pm", "8:30 pm"
	clockOnly = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*([ap]\.?m\.?)$`)
)

// Parse parses value, trying the extra layouts first.
func Parse(value string, extra ...string) (Result, error) {
	v := clean(value)
	if v == "" {
		return Result{}, ErrEmpty
	}

	for _, layout := range extra {
		if t, err := time.Parse(layout, v); err == nil {
			return fromTime(t, layoutHasClock(layout)), nil
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return fromTime(t, true), nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return fromTime(t, false), nil
		}
	}
	return Result{}, fmt.Errorf("unrecognised date %q", value)
}

// ParseClock parses a bare time of day such as "8pm", "8:30 PM" or "20:00" into HH:MM.
func ParseClock(value string) (*string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, ErrEmpty
	}
	if t, err := time.Parse("15:04", v); err == nil {
		out := t.Format(domain.TimeLayout)
		return &out, nil
	}
	m := clockOnly.FindStringSubmatch(v)
	if m == nil {
		return nil, fmt.Errorf("unrecognised time %q", value)
	}
	minutes := m[2]
	if minutes == "" {
		minutes = "00"
	}
	meridiem := strings.ToUpper(strings.ReplaceAll(m[3], ".", ""))
	t, err := time.Parse("3:04PM", m[1]+":"+minutes+meridiem)
	if err != nil {
		return nil, fmt.Errorf("unrecognised time %q: %w", value, err)
	}
	out := t.Format(domain.TimeLayout)
	return &out, nil
}

func fromTime(t time.Time, hasClock bool) Result {
	date, hhmm := domain.SplitDateTime(t, hasClock)
	return Result{Date: date, Time: hhmm}
}

func clean(v string) string {
	v = strings.TrimSpace(spaces.ReplaceAllString(v, " "))
	v = ordinals.ReplaceAllString(v, "$1")
	return v
}

func layoutHasClock(layout string) bool {
	return strings.Contains(layout, "15") || strings.Contains(layout, "3:04") || strings.Contains(layout, "04")
}
