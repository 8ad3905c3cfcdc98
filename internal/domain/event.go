package domain

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// DateLayout is the calendar date format used in fingerprints and storage.
const DateLayout = "2006-01-02"

// TimeLayout is the time-of-day format for start and end times.
const TimeLayout = "15:04"

// RawEventCandidate is one event occurrence observed by an adapter.
// It is never persisted directly.
type RawEventCandidate struct {
	Title       string
	Description string

	// StartDate carries the calendar date only; see StartTime.
	StartDate time.Time
	// StartTime is nil when the time of day is unknown. Unknown is not midnight.
	StartTime *string
	EndDate   *time.Time
	EndTime   *string
	IsAllDay  bool

	VenueName    string
	VenueAddress string
	VenueID      *string

	PriceMin *float64
	PriceMax *float64
	IsFree   *bool

	TicketURL string
	SourceURL string
	ImageURL  string
	Tags      []string

	// Confidence is the adapter's certainty in [0,1].
	Confidence float64
}

// Event is a persisted catalog record.
type Event struct {
	ID       string  `db:"id"        json:"id"`
	SourceID string  `db:"source_id" json:"source_id"`
	VenueID  *string `db:"venue_id"  json:"venue_id,omitempty"`

	Title       string     `db:"title"       json:"title"`
	Description string     `db:"description" json:"description,omitempty"`
	StartDate   time.Time  `db:"start_date"  json:"start_date"`
	StartTime   *string    `db:"start_time"  json:"start_time,omitempty"`
	EndDate     *time.Time `db:"end_date"    json:"end_date,omitempty"`
	EndTime     *string    `db:"end_time"    json:"end_time,omitempty"`
	IsAllDay    bool       `db:"is_all_day"  json:"is_all_day"`

	VenueName    string `db:"venue_name"    json:"venue_name"`
	VenueAddress string `db:"venue_address" json:"venue_address,omitempty"`
	VenueKey     string `db:"venue_key"     json:"-"`

	PriceMin *float64 `db:"price_min" json:"price_min,omitempty"`
	PriceMax *float64 `db:"price_max" json:"price_max,omitempty"`
	IsFree   *bool    `db:"is_free"   json:"is_free,omitempty"`

	TicketURL string         `db:"ticket_url" json:"ticket_url,omitempty"`
	SourceURL string         `db:"source_url" json:"source_url,omitempty"`
	ImageURL  string         `db:"image_url"  json:"image_url,omitempty"`
	Tags      pq.StringArray `db:"tags"       json:"tags,omitempty"`

	Confidence     float64 `db:"confidence"      json:"confidence"`
	SourcePriority int     `db:"source_priority" json:"source_priority"`

	ContentHash      string  `db:"content_hash"       json:"content_hash"`
	CanonicalEventID *string `db:"canonical_event_id" json:"canonical_event_id,omitempty"`

	FirstSeenAt time.Time `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time `db:"last_seen_at"  json:"last_seen_at"`
	CreatedAt   time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"    json:"updated_at"`
}

// IsCanonical reports whether e is the surviving record for its fingerprint.
func (e *Event) IsCanonical() bool {
	return e.CanonicalEventID == nil
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	c := *e
	c.Tags = append(pq.StringArray(nil), e.Tags...)
	c.VenueID = cloneString(e.VenueID)
	c.StartTime = cloneString(e.StartTime)
	c.EndTime = cloneString(e.EndTime)
	c.CanonicalEventID = cloneString(e.CanonicalEventID)
	if e.EndDate != nil {
		d := *e.EndDate
		c.EndDate = &d
	}
	if e.PriceMin != nil {
		v := *e.PriceMin
		c.PriceMin = &v
	}
	if e.PriceMax != nil {
		v := *e.PriceMax
		c.PriceMax = &v
	}
	if e.IsFree != nil {
		v := *e.IsFree
		c.IsFree = &v
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// DateOnly truncates t to its calendar date in UTC, keeping the wall-clock date of t.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SplitDateTime splits t into a calendar date and an HH:MM time. The time is nil when hasTime is false.
func SplitDateTime(t time.Time, hasTime bool) (time.Time, *string) {
	date := DateOnly(t)
	if !hasTime {
		return date, nil
	}
	hhmm := t.Format(TimeLayout)
	return date, &hhmm
}

// NormalizeTags lowercases, trims and de-duplicates tags, preserving first-seen order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Outcome is the result of reconciling one candidate.
type Outcome string

// Reconciliation outcomes.
const (
	OutcomeNew     Outcome = "new"
	OutcomeUpdated Outcome = "updated"
)
