package domain

import "time"

// RunStatus is the state of a crawl run.
type RunStatus string

// Run states. Pending and Running are transient; the rest are terminal.
const (
	RunPending  RunStatus = "pending"
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunFailed   RunStatus = "failed"
	RunTimedOut RunStatus = "timed_out"
)

// IsTerminal reports whether the run has finished.
func (s RunStatus) IsTerminal() bool {
	return s == RunSuccess || s == RunFailed || s == RunTimedOut
}

// CrawlRun is one execution of one source's adapter.
type CrawlRun struct {
	ID       string            `db:"id"        json:"id"`
	SourceID string            `db:"source_id" json:"source_id"`
	Method   IntegrationMethod `db:"method"    json:"method"`
	Status   RunStatus         `db:"status"    json:"status"`

	StartedAt  time.Time  `db:"started_at"  json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`

	EventsFound   int `db:"events_found"   json:"events_found"`
	EventsNew     int `db:"events_new"     json:"events_new"`
	EventsUpdated int `db:"events_updated" json:"events_updated"`
	EventsSkipped int `db:"events_skipped" json:"events_skipped"`

	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
}

// Duration returns how long the run took, or zero while it is in flight.
func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
