// Package memory is an in-process implementation of the store contracts, used by tests
// and dry runs. It enforces the same canonical uniqueness rule as the database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

// Store implements store.EventStore, store.Purger, store.SourceStore and store.RunStore.
type Store struct {
	mu        sync.RWMutex
	events    map[string]*domain.Event
	canonical map[string]string // content_hash -> id of the canonical row
	sources   map[string]*domain.Source
	runs      map[string]*domain.CrawlRun
	runSeq    map[string]int64
	seq       int64
	created   time.Time // latest event created_at; insert order is strict
	now       func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		events:    make(map[string]*domain.Event),
		canonical: make(map[string]string),
		sources:   make(map[string]*domain.Source),
		runs:      make(map[string]*domain.CrawlRun),
		runSeq:    make(map[string]int64),
		now:       time.Now,
	}
}

var (
	_ store.EventStore  = (*Store)(nil)
	_ store.Purger      = (*Store)(nil)
	_ store.SourceStore = (*Store)(nil)
	_ store.RunStore    = (*Store)(nil)
)

// FindByFingerprint implements store.EventStore.
func (s *Store) FindByFingerprint(_ context.Context, hash string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.canonical[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.events[id].Clone(), nil
}

// FindCanonicalByAlias implements store.EventStore.
func (s *Store) FindCanonicalByAlias(_ context.Context, hash string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.ContentHash != hash || e.CanonicalEventID == nil {
			continue
		}
		if target, ok := s.events[*e.CanonicalEventID]; ok && target.IsCanonical() {
			return target.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

// Insert implements store.EventStore.
func (s *Store) Insert(_ context.Context, e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IsCanonical() {
		if _, taken := s.canonical[e.ContentHash]; taken {
			return crawlerr.ErrStoreConflict
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if !now.After(s.created) {
		now = s.created.Add(time.Nanosecond)
	}
	s.created = now
	e.CreatedAt, e.UpdatedAt = now, now
	if e.FirstSeenAt.IsZero() {
		e.FirstSeenAt = now
	}
	if e.LastSeenAt.IsZero() {
		e.LastSeenAt = now
	}

	s.events[e.ID] = e.Clone()
	if e.IsCanonical() {
		s.canonical[e.ContentHash] = e.ID
	}
	return nil
}

// Update implements store.EventStore.
func (s *Store) Update(_ context.Context, id string, patch store.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	updated := e.Clone()
	for col, v := range patch {
		if err := apply(updated, col, v); err != nil {
			return err
		}
	}
	updated.UpdatedAt = s.now().UTC()
	s.events[id] = updated
	return nil
}

// FindSameDay implements store.EventStore.
func (s *Store) FindSameDay(_ context.Context, venueKey string, date time.Time) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := domain.DateOnly(date)
	var out []*domain.Event
	for _, e := range s.events {
		if e.IsCanonical() && e.VenueKey == venueKey && domain.DateOnly(e.StartDate).Equal(day) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MarkDuplicate implements store.EventStore.
func (s *Store) MarkDuplicate(_ context.Context, id, canonicalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	target, ok := s.events[canonicalID]
	if !ok {
		return fmt.Errorf("canonical %s: %w", canonicalID, store.ErrNotFound)
	}
	if !e.IsCanonical() || !target.IsCanonical() || s.hasAliases(id) {
		return store.ErrNotCanonical
	}
	updated := e.Clone()
	updated.CanonicalEventID = &canonicalID
	updated.UpdatedAt = s.now().UTC()
	s.events[id] = updated
	if s.canonical[e.ContentHash] == id {
		delete(s.canonical, e.ContentHash)
	}
	return nil
}

func (s *Store) hasAliases(id string) bool {
	for _, e := range s.events {
		if e.CanonicalEventID != nil && *e.CanonicalEventID == id {
			return true
		}
	}
	return false
}

// Get implements store.EventStore.
func (s *Store) Get(_ context.Context, id string) (*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

// ListUpcoming implements store.EventStore.
func (s *Store) ListUpcoming(_ context.Context, from time.Time, limit int) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := domain.DateOnly(from)
	var out []*domain.Event
	for _, e := range s.events {
		if e.IsCanonical() && !e.StartDate.Before(day) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].Title < out[j].Title
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns every stored row, canonical or not. Tests use it to inspect state.
func (s *Store) Events() []*domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PurgeBefore implements store.Purger.
func (s *Store) PurgeBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := domain.DateOnly(before)
	var n int64
	for id, e := range s.events {
		if !e.StartDate.Before(cutoff) {
			continue
		}
		delete(s.events, id)
		if s.canonical[e.ContentHash] == id {
			delete(s.canonical, e.ContentHash)
		}
		n++
	}
	for _, e := range s.events {
		if e.CanonicalEventID != nil {
			if _, ok := s.events[*e.CanonicalEventID]; !ok {
				e.CanonicalEventID = nil
				if _, taken := s.canonical[e.ContentHash]; !taken {
					s.canonical[e.ContentHash] = e.ID
				}
			}
		}
	}
	return n, nil
}

func apply(e *domain.Event, col string, v any) error {
	var ok bool
	switch col {
	case store.ColTitle:
		e.Title, ok = v.(string)
	case store.ColDescription:
		e.Description, ok = v.(string)
	case store.ColStartTime:
		e.StartTime, ok = v.(*string)
	case store.ColEndDate:
		e.EndDate, ok = v.(*time.Time)
	case store.ColEndTime:
		e.EndTime, ok = v.(*string)
	case store.ColIsAllDay:
		e.IsAllDay, ok = v.(bool)
	case store.ColVenueName:
		e.VenueName, ok = v.(string)
	case store.ColVenueAddress:
		e.VenueAddress, ok = v.(string)
	case store.ColVenueID:
		e.VenueID, ok = v.(*string)
	case store.ColPriceMin:
		e.PriceMin, ok = v.(*float64)
	case store.ColPriceMax:
		e.PriceMax, ok = v.(*float64)
	case store.ColIsFree:
		e.IsFree, ok = v.(*bool)
	case store.ColTicketURL:
		e.TicketURL, ok = v.(string)
	case store.ColSourceURL:
		e.SourceURL, ok = v.(string)
	case store.ColImageURL:
		e.ImageURL, ok = v.(string)
	case store.ColTags:
		switch tags := v.(type) {
		case pq.StringArray:
			e.Tags, ok = append(pq.StringArray(nil), tags...), true
		case []string:
			e.Tags, ok = append(pq.StringArray(nil), tags...), true
		}
	case store.ColConfidence:
		e.Confidence, ok = v.(float64)
	case store.ColSourceID:
		e.SourceID, ok = v.(string)
	case store.ColSourcePriority:
		e.SourcePriority, ok = v.(int)
	case store.ColLastSeenAt:
		e.LastSeenAt, ok = v.(time.Time)
	default:
		return fmt.Errorf("column %q is not patchable", col)
	}
	if !ok {
		return fmt.Errorf("column %q: unexpected value type %T", col, v)
	}
	return nil
}
