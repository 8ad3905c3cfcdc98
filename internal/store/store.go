// Package store defines the persistence contract used by the merge engine, the orchestrator
// and the API. Implementations live in internal/database (PostgreSQL) and store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrRunFinished is returned when finishing a run that is already terminal.
	ErrRunFinished = errors.New("store: run already finished")
	// ErrNotCanonical is returned by MarkDuplicate when either row has stopped being canonical
	// or the duplicate already has aliases of its own.
	ErrNotCanonical = errors.New("store: row is not canonical")
)

// Patch maps event columns to new values. Only the columns below may appear.
type Patch map[string]any

// Patchable event columns.
const (
	ColTitle          = "title"
	ColDescription    = "description"
	ColStartTime      = "start_time"
	ColEndDate        = "end_date"
	ColEndTime        = "end_time"
	ColIsAllDay       = "is_all_day"
	ColVenueName      = "venue_name"
	ColVenueAddress   = "venue_address"
	ColVenueID        = "venue_id"
	ColPriceMin       = "price_min"
	ColPriceMax       = "price_max"
	ColIsFree         = "is_free"
	ColTicketURL      = "ticket_url"
	ColSourceURL      = "source_url"
	ColImageURL       = "image_url"
	ColTags           = "tags"
	ColConfidence     = "confidence"
	ColSourceID       = "source_id"
	ColSourcePriority = "source_priority"
	ColLastSeenAt     = "last_seen_at"
)

var patchable = map[string]struct{}{
	ColTitle: {}, ColDescription: {}, ColStartTime: {}, ColEndDate: {}, ColEndTime: {},
	ColIsAllDay: {}, ColVenueName: {}, ColVenueAddress: {}, ColVenueID: {}, ColPriceMin: {},
	ColPriceMax: {}, ColIsFree: {}, ColTicketURL: {}, ColSourceURL: {}, ColImageURL: {},
	ColTags: {}, ColConfidence: {}, ColSourceID: {}, ColSourcePriority: {}, ColLastSeenAt: {},
}

// IsPatchable reports whether col may be set through Update.
func IsPatchable(col string) bool {
	_, ok := patchable[col]
	return ok
}

// EventStore persists catalog events. At most one canonical row (canonical_event_id NULL)
// exists per content hash; Insert returns crawlerr.ErrStoreConflict when that would be violated.
type EventStore interface {
	FindByFingerprint(ctx context.Context, hash string) (*domain.Event, error)
	// FindCanonicalByAlias resolves a demoted row with hash to its canonical event.
	FindCanonicalByAlias(ctx context.Context, hash string) (*domain.Event, error)
	Insert(ctx context.Context, e *domain.Event) error
	Update(ctx context.Context, id string, patch Patch) error
	// FindSameDay returns canonical events at a venue on a date, oldest first.
	FindSameDay(ctx context.Context, venueKey string, date time.Time) ([]*domain.Event, error)
	// MarkDuplicate demotes id to an alias of canonicalID. Both rows must still be canonical
	// and id must have no aliases, otherwise it returns ErrNotCanonical and changes nothing.
	MarkDuplicate(ctx context.Context, id, canonicalID string) error
	Get(ctx context.Context, id string) (*domain.Event, error)
	// ListUpcoming returns canonical events starting on or after from, soonest first.
	ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*domain.Event, error)
}

// Purger removes past events.
type Purger interface {
	// PurgeBefore deletes events whose start date is before the given date.
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// SourceStore persists sources.
type SourceStore interface {
	List(ctx context.Context, activeOnly bool) ([]*domain.Source, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Source, error)
	// Upsert inserts src or updates the row with the same slug. Classification state is kept.
	Upsert(ctx context.Context, src *domain.Source) error
	UpdateClassification(ctx context.Context, sourceID string, method domain.IntegrationMethod,
		signals domain.Signals, auditedAt time.Time) error
	SetMethod(ctx context.Context, sourceID string, method domain.IntegrationMethod, overridden bool) error
	Deactivate(ctx context.Context, sourceID, reason string) error
}

// RunStore persists crawl runs.
type RunStore interface {
	Create(ctx context.Context, run *domain.CrawlRun) error
	// Save writes status, counts and error. Returns ErrRunFinished when the stored run is terminal.
	Save(ctx context.Context, run *domain.CrawlRun) error
	// Recent returns the newest runs first; an empty sourceID lists every source.
	Recent(ctx context.Context, sourceID string, limit int) ([]*domain.CrawlRun, error)
}
