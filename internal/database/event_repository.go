package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

const eventSelectColumns = `id, source_id, venue_id, title, description, start_date, start_time,
	end_date, end_time, is_all_day, venue_name, venue_address, venue_key, price_min, price_max,
	is_free, ticket_url, source_url, image_url, tags, confidence, source_priority, content_hash,
	canonical_event_id, first_seen_at, last_seen_at, created_at, updated_at`

// EventRepository implements store.EventStore and store.Purger on PostgreSQL.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

var (
	_ store.EventStore = (*EventRepository)(nil)
	_ store.Purger     = (*EventRepository)(nil)
)

func (r *EventRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Event, error) {
	var e domain.Event
	if err := r.db.GetContext(ctx, &e, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// FindByFingerprint returns the canonical event with the given content hash.
func (r *EventRepository) FindByFingerprint(ctx context.Context, hash string) (*domain.Event, error) {
	query := `SELECT ` + eventSelectColumns + ` FROM events
		WHERE content_hash = $1 AND canonical_event_id IS NULL`

	e, err := r.getOne(ctx, query, hash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to find event by fingerprint: %w", err)
	}
	return e, err
}

// FindCanonicalByAlias follows a demoted row with the given hash to its canonical event.
func (r *EventRepository) FindCanonicalByAlias(ctx context.Context, hash string) (*domain.Event, error) {
	query := `SELECT ` + qualify("c", eventSelectColumns) + `
		FROM events d
		JOIN events c ON c.id = d.canonical_event_id
		WHERE d.content_hash = $1 AND c.canonical_event_id IS NULL
		ORDER BY d.created_at
		LIMIT 1`

	e, err := r.getOne(ctx, query, hash)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to resolve event alias: %w", err)
	}
	return e, err
}

// Insert creates e. A canonical row whose hash is already taken yields crawlerr.ErrStoreConflict.
func (r *EventRepository) Insert(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Tags == nil {
		e.Tags = pq.StringArray{}
	}
	now := time.Now().UTC()
	if e.FirstSeenAt.IsZero() {
		e.FirstSeenAt = now
	}
	if e.LastSeenAt.IsZero() {
		e.LastSeenAt = now
	}

	query := `
		INSERT INTO events (
			id, source_id, venue_id, title, description, start_date, start_time, end_date, end_time,
			is_all_day, venue_name, venue_address, venue_key, price_min, price_max, is_free,
			ticket_url, source_url, image_url, tags, confidence, source_priority, content_hash,
			canonical_event_id, first_seen_at, last_seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26
		)
		ON CONFLICT (content_hash) WHERE canonical_event_id IS NULL DO NOTHING
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		e.ID, e.SourceID, e.VenueID, e.Title, e.Description, e.StartDate, e.StartTime, e.EndDate, e.EndTime,
		e.IsAllDay, e.VenueName, e.VenueAddress, e.VenueKey, e.PriceMin, e.PriceMax, e.IsFree,
		e.TicketURL, e.SourceURL, e.ImageURL, e.Tags, e.Confidence, e.SourcePriority, e.ContentHash,
		e.CanonicalEventID, e.FirstSeenAt, e.LastSeenAt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return crawlerr.ErrStoreConflict
	case err != nil:
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Update applies patch to the event. Unknown columns are rejected.
func (r *EventRepository) Update(ctx context.Context, id string, patch store.Patch) error {
	if len(patch) == 0 {
		return nil
	}

	cols := make([]string, 0, len(patch))
	for col := range patch {
		if !store.IsPatchable(col) {
			return fmt.Errorf("column %q is not patchable", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, patchValue(patch[col]))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE events SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err = execRequireRows(result, err, store.ErrNotFound); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// qualify prefixes every column in a comma-separated list with alias.
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func patchValue(v any) any {
	if tags, ok := v.([]string); ok {
		return pq.Array(tags)
	}
	return v
}

// FindSameDay returns canonical events at venueKey on date, oldest first.
func (r *EventRepository) FindSameDay(ctx context.Context, venueKey string, date time.Time) ([]*domain.Event, error) {
	query := `SELECT ` + eventSelectColumns + ` FROM events
		WHERE venue_key = $1 AND start_date = $2 AND canonical_event_id IS NULL
		ORDER BY created_at, id`

	var events []*domain.Event
	if err := r.db.SelectContext(ctx, &events, query, venueKey, domain.DateOnly(date)); err != nil {
		return nil, fmt.Errorf("failed to find same-day events: %w", err)
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return events, nil
}

// MarkDuplicate demotes id to an alias of canonicalID while both rows are still canonical.
func (r *EventRepository) MarkDuplicate(ctx context.Context, id, canonicalID string) error {
	query := `UPDATE events SET canonical_event_id = $2, updated_at = NOW()
		WHERE id = $1 AND canonical_event_id IS NULL
			AND EXISTS (SELECT 1 FROM events WHERE id = $2 AND canonical_event_id IS NULL)
			AND NOT EXISTS (SELECT 1 FROM events WHERE canonical_event_id = $1)`

	result, err := r.db.ExecContext(ctx, query, id, canonicalID)
	if err = execRequireRows(result, err, store.ErrNotCanonical); err != nil {
		if errors.Is(err, store.ErrNotCanonical) {
			return err
		}
		return fmt.Errorf("failed to mark duplicate: %w", err)
	}
	return nil
}

// Get returns the event with id.
func (r *EventRepository) Get(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventSelectColumns + ` FROM events WHERE id = $1`

	e, err := r.getOne(ctx, query, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, err
}

// ListUpcoming returns canonical events on or after from, soonest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, from time.Time, limit int) ([]*domain.Event, error) {
	query := `SELECT ` + eventSelectColumns + ` FROM events
		WHERE start_date >= $1 AND canonical_event_id IS NULL
		ORDER BY start_date, start_time NULLS FIRST, title`
	args := []any{domain.DateOnly(from)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var events []*domain.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list upcoming events: %w", err)
	}
	if events == nil {
		events = []*domain.Event{}
	}
	return events, nil
}

// PurgeBefore deletes events that started before the given date, together with any
// alias rows pointing at them, in one transaction.
func (r *EventRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	cutoff := domain.DateOnly(before)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	aliases, err := tx.ExecContext(ctx, `
		DELETE FROM events
		WHERE canonical_event_id IN (SELECT id FROM events WHERE start_date < $1)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge event aliases: %w", err)
	}
	events, err := tx.ExecContext(ctx, `DELETE FROM events WHERE start_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	nAliases, _ := aliases.RowsAffected()
	nEvents, _ := events.RowsAffected()
	return nAliases + nEvents, nil
}
