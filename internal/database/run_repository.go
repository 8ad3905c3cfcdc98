package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

const runSelectColumns = `id, source_id, method, status, started_at, finished_at,
	events_found, events_new, events_updated, events_skipped, error_message`

// RunRepository implements store.RunStore on PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a new crawl run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

var _ store.RunStore = (*RunRepository)(nil)

// Create inserts a new run.
func (r *RunRepository) Create(ctx context.Context, run *domain.CrawlRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO crawl_runs (id, source_id, method, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.ExecContext(ctx, query, run.ID, run.SourceID, run.Method, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("failed to create crawl run: %w", err)
	}
	return nil
}

// Save writes the mutable fields of run while the stored row is still in flight.
func (r *RunRepository) Save(ctx context.Context, run *domain.CrawlRun) error {
	query := `
		UPDATE crawl_runs
		SET status = $2, finished_at = $3, events_found = $4, events_new = $5,
			events_updated = $6, events_skipped = $7, error_message = $8
		WHERE id = $1 AND status IN ('pending', 'running')`

	result, err := r.db.ExecContext(ctx, query,
		run.ID, run.Status, run.FinishedAt, run.EventsFound, run.EventsNew,
		run.EventsUpdated, run.EventsSkipped, run.ErrorMessage,
	)
	if err = execRequireRows(result, err, store.ErrNotFound); err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}

	var status domain.RunStatus
	lookupErr := r.db.GetContext(ctx, &status, `SELECT status FROM crawl_runs WHERE id = $1`, run.ID)
	switch {
	case errors.Is(lookupErr, sql.ErrNoRows):
		return store.ErrNotFound
	case lookupErr != nil:
		return fmt.Errorf("failed to load crawl run status: %w", lookupErr)
	default:
		return store.ErrRunFinished
	}
}

// Recent returns the newest runs first, optionally for a single source.
func (r *RunRepository) Recent(ctx context.Context, sourceID string, limit int) ([]*domain.CrawlRun, error) {
	query := `SELECT ` + runSelectColumns + ` FROM crawl_runs`
	var args []any
	if sourceID != "" {
		query += ` WHERE source_id = $1`
		args = append(args, sourceID)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var runs []*domain.CrawlRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	if runs == nil {
		runs = []*domain.CrawlRun{}
	}
	return runs, nil
}
