package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

func cloneSource(src *domain.Source) *domain.Source {
	c := *src
	c.Config = make(domain.JSONBMap, len(src.Config))
	for k, v := range src.Config {
		c.Config[k] = v
	}
	c.ClassifierSignals = append(domain.Signals(nil), src.ClassifierSignals...)
	return &c
}

// List implements store.SourceStore.
func (s *Store) List(_ context.Context, activeOnly bool) ([]*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if activeOnly && !src.IsActive {
			continue
		}
		out = append(out, cloneSource(src))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// GetBySlug implements store.SourceStore.
func (s *Store) GetBySlug(_ context.Context, slug string) (*domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, src := range s.sources {
		if src.Slug == slug {
			return cloneSource(src), nil
		}
	}
	return nil, store.ErrNotFound
}

// Upsert implements store.SourceStore.
func (s *Store) Upsert(_ context.Context, src *domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	for id, existing := range s.sources {
		if existing.Slug != src.Slug {
			continue
		}
		updated := cloneSource(src)
		updated.ID = id
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = now
		if existing.MethodOverridden || src.IntegrationMethod == "" || src.IntegrationMethod == domain.MethodUnknown {
			updated.IntegrationMethod = existing.IntegrationMethod
			updated.MethodOverridden = existing.MethodOverridden
		}
		updated.ClassifierSignals = existing.ClassifierSignals
		updated.AuditedAt = existing.AuditedAt
		s.sources[id] = updated
		src.ID = id
		return nil
	}

	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.IntegrationMethod == "" {
		src.IntegrationMethod = domain.MethodUnknown
	}
	src.CreatedAt, src.UpdatedAt = now, now
	s.sources[src.ID] = cloneSource(src)
	return nil
}

func (s *Store) mutateSource(id string, fn func(*domain.Source)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok {
		return store.ErrNotFound
	}
	updated := cloneSource(src)
	fn(updated)
	updated.UpdatedAt = s.now().UTC()
	s.sources[id] = updated
	return nil
}

// UpdateClassification implements store.SourceStore.
func (s *Store) UpdateClassification(
	_ context.Context, sourceID string, method domain.IntegrationMethod, signals domain.Signals, auditedAt time.Time,
) error {
	return s.mutateSource(sourceID, func(src *domain.Source) {
		src.IntegrationMethod = method
		src.MethodOverridden = false
		src.ClassifierSignals = append(domain.Signals(nil), signals...)
		at := auditedAt
		src.AuditedAt = &at
	})
}

// SetMethod implements store.SourceStore.
func (s *Store) SetMethod(_ context.Context, sourceID string, method domain.IntegrationMethod, overridden bool) error {
	return s.mutateSource(sourceID, func(src *domain.Source) {
		src.IntegrationMethod = method
		src.MethodOverridden = overridden
	})
}

// Deactivate implements store.SourceStore.
func (s *Store) Deactivate(_ context.Context, sourceID, reason string) error {
	return s.mutateSource(sourceID, func(src *domain.Source) {
		src.IsActive = false
		src.DeactivatedReason = &reason
	})
}
