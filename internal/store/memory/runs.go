package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

func cloneRun(r *domain.CrawlRun) *domain.CrawlRun {
	c := *r
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	if r.ErrorMessage != nil {
		m := *r.ErrorMessage
		c.ErrorMessage = &m
	}
	return &c
}

// Create implements store.RunStore.
func (s *Store) Create(_ context.Context, run *domain.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}
	s.seq++
	s.runSeq[run.ID] = s.seq
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Save implements store.RunStore.
func (s *Store) Save(_ context.Context, run *domain.CrawlRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Status.IsTerminal() {
		return store.ErrRunFinished
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Recent implements store.RunStore.
func (s *Store) Recent(_ context.Context, sourceID string, limit int) ([]*domain.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CrawlRun
	for _, r := range s.runs {
		if sourceID == "" || r.SourceID == sourceID {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return s.runSeq[out[i].ID] > s.runSeq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
