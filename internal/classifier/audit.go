package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

// Prober classifies a URL.
type Prober interface {
	Classify(ctx context.Context, rawURL string) (*Result, error)
}

// ClassificationStore persists an audit result for a source.
type ClassificationStore interface {
	UpdateClassification(
		ctx context.Context,
		sourceID string,
		method domain.IntegrationMethod,
		signals domain.Signals,
		auditedAt time.Time,
	) error
}

// Auditor applies the classifier to sources and caches the outcome on the source record.
type Auditor struct {
	prober Prober
	store  ClassificationStore
	log    logger.Logger
}

// NewAuditor creates an Auditor.
func NewAuditor(prober Prober, store ClassificationStore, log logger.Logger) *Auditor {
	return &Auditor{prober: prober, store: store, log: log}
}

// Audit returns the source's integration method. A cached or manually overridden method
// is returned as-is unless force is set; otherwise the source is probed and the result
// stored. src is updated in place.
func (a *Auditor) Audit(ctx context.Context, src *domain.Source, force bool) (domain.IntegrationMethod, error) {
	if !force && (src.MethodOverridden || src.IntegrationMethod != domain.MethodUnknown) {
		return src.IntegrationMethod, nil
	}

	res, err := a.prober.Classify(ctx, src.URL)
	if err != nil {
		return src.IntegrationMethod, fmt.Errorf("audit %s: %w", src.Slug, err)
	}

	if err = a.store.UpdateClassification(ctx, src.ID, res.Method, res.Signals, res.ProbedAt); err != nil {
		return src.IntegrationMethod, fmt.Errorf("store audit for %s: %w", src.Slug, err)
	}

	previous := src.IntegrationMethod
	src.IntegrationMethod = res.Method
	src.ClassifierSignals = res.Signals
	src.MethodOverridden = false
	probedAt := res.ProbedAt
	src.AuditedAt = &probedAt

	logger.FromContext(ctx, a.log.With(logger.String("source", src.Slug))).Info("Audited source",
		logger.String("previous_method", string(previous)),
		logger.String("method", string(res.Method)),
		logger.Bool("forced", force),
	)
	return res.Method, nil
}
