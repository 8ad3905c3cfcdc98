package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

const sourceSelectColumns = `id, slug, name, url, integration_method, method_overridden, is_active,
	producer_id, priority, config, classifier_signals, audited_at, deactivated_reason, created_at, updated_at`

// SourceRepository implements store.SourceStore on PostgreSQL.
type SourceRepository struct {
	db *sqlx.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *sqlx.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

var _ store.SourceStore = (*SourceRepository)(nil)

// List returns sources ordered by slug.
func (r *SourceRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY slug`

	var sources []*domain.Source
	if err := r.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	if sources == nil {
		sources = []*domain.Source{}
	}
	return sources, nil
}

// GetBySlug returns the source with slug.
func (r *SourceRepository) GetBySlug(ctx context.Context, slug string) (*domain.Source, error) {
	query := `SELECT ` + sourceSelectColumns + ` FROM sources WHERE slug = $1`

	var src domain.Source
	if err := r.db.GetContext(ctx, &src, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get source %s: %w", slug, err)
	}
	return &src, nil
}

// Upsert inserts src or updates the row with the same slug. An overridden method, and any
// stored method when src carries none, survive the update. Classifier evidence is never touched.
func (r *SourceRepository) Upsert(ctx context.Context, src *domain.Source) error {
	if src.IntegrationMethod == "" {
		src.IntegrationMethod = domain.MethodUnknown
	}

	query := `
		INSERT INTO sources (slug, name, url, integration_method, is_active, producer_id, priority, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			integration_method = CASE
				WHEN sources.method_overridden OR EXCLUDED.integration_method = 'unknown'
					THEN sources.integration_method
				ELSE EXCLUDED.integration_method
			END,
			is_active = EXCLUDED.is_active,
			producer_id = EXCLUDED.producer_id,
			priority = EXCLUDED.priority,
			config = EXCLUDED.config,
			updated_at = NOW()
		RETURNING id, integration_method, method_overridden, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		src.Slug, src.Name, src.URL, src.IntegrationMethod, src.IsActive, src.ProducerID, src.Priority, src.Config,
	).Scan(&src.ID, &src.IntegrationMethod, &src.MethodOverridden, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", src.Slug, err)
	}
	return nil
}

// UpdateClassification records a classifier verdict and clears any manual override.
func (r *SourceRepository) UpdateClassification(
	ctx context.Context, sourceID string, method domain.IntegrationMethod, signals domain.Signals, auditedAt time.Time,
) error {
	query := `
		UPDATE sources
		SET integration_method = $2, method_overridden = FALSE, classifier_signals = $3,
			audited_at = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, sourceID, method, signals, auditedAt)
	if err = execRequireRows(result, err, store.ErrNotFound); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to update classification: %w", err)
	}
	return nil
}

// SetMethod sets the integration method, optionally pinning it against reclassification.
func (r *SourceRepository) SetMethod(
	ctx context.Context, sourceID string, method domain.IntegrationMethod, overridden bool,
) error {
	query := `UPDATE sources SET integration_method = $2, method_overridden = $3, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, sourceID, method, overridden)
	if err = execRequireRows(result, err, store.ErrNotFound); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to set method: %w", err)
	}
	return nil
}

// Deactivate marks the source inactive with a reason.
func (r *SourceRepository) Deactivate(ctx context.Context, sourceID, reason string) error {
	query := `UPDATE sources SET is_active = FALSE, deactivated_reason = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, sourceID, reason)
	if err = execRequireRows(result, err, store.ErrNotFound); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to deactivate source: %w", err)
	}
	return nil
}
