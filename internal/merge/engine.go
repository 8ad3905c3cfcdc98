// Package merge reconciles adapter candidates into canonical catalog events.
package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fingerprint"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

// DefaultConfidence replaces a zero candidate confidence.
const DefaultConfidence = 0.5

// Result describes what one reconciliation did.
type Result struct {
	Event   *domain.Event
	Outcome domain.Outcome
	// Linked is set when a new row was demoted as a near-duplicate of an existing event.
	Linked bool
}

// Engine reconciles candidates against the event store.
type Engine struct {
	events store.EventStore
	cfg    Config
	log    logger.Logger
	now    func() time.Time
}

// New creates an Engine.
func New(events store.EventStore, cfg Config, log logger.Logger) *Engine {
	cfg.SetDefaults()
	return &Engine{events: events, cfg: cfg, log: log, now: time.Now}
}

// Validate checks the fields a catalog entry cannot exist without.
func Validate(c *domain.RawEventCandidate) error {
	if strings.TrimSpace(c.Title) == "" {
		return crawlerr.Validation("title", "blank")
	}
	if c.StartDate.IsZero() {
		return crawlerr.Validation("start_date", "missing")
	}
	if c.EndDate != nil && domain.DateOnly(*c.EndDate).Before(domain.DateOnly(c.StartDate)) {
		c.EndDate, c.EndTime = nil, nil
	}
	switch {
	case c.Confidence <= 0:
		c.Confidence = DefaultConfidence
	case c.Confidence > 1:
		c.Confidence = 1
	}
	return nil
}

// Reconcile matches c against stored events by fingerprint and inserts or merges it.
// Each call commits on its own; a later failure never undoes it.
func (e *Engine) Reconcile(ctx context.Context, src *domain.Source, c domain.RawEventCandidate) (*Result, error) {
	if err := Validate(&c); err != nil {
		return nil, err
	}
	hash := fingerprint.Of(&c)

	for attempt := 0; ; attempt++ {
		existing, err := e.lookup(ctx, hash)
		switch {
		case err == nil:
			return e.update(ctx, existing, src, &c)
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("lookup %s: %w", hash, err)
		}

		ev := newEvent(src, &c, hash, e.now().UTC())
		err = e.events.Insert(ctx, ev)
		if err == nil {
			res := &Result{Event: ev, Outcome: domain.OutcomeNew}
			e.link(ctx, res)
			return res, nil
		}
		if !crawlerr.IsStoreConflict(err) || attempt >= e.cfg.ConflictRetries {
			return nil, fmt.Errorf("insert %s: %w", hash, err)
		}
		logger.FromContext(ctx, e.log).Debug("Lost insert race, retrying as update",
			logger.String("content_hash", hash),
			logger.Int("attempt", attempt+1),
		)
	}
}

func (e *Engine) lookup(ctx context.Context, hash string) (*domain.Event, error) {
	ev, err := e.events.FindByFingerprint(ctx, hash)
	if !errors.Is(err, store.ErrNotFound) {
		return ev, err
	}
	return e.events.FindCanonicalByAlias(ctx, hash)
}

func (e *Engine) update(ctx context.Context, stored *domain.Event, src *domain.Source, c *domain.RawEventCandidate) (*Result, error) {
	merged, patch := Merge(stored, c, src.ID, src.EffectivePriority(), e.now().UTC())
	if err := e.events.Update(ctx, stored.ID, patch); err != nil {
		return nil, fmt.Errorf("update %s: %w", stored.ID, err)
	}
	return &Result{Event: merged, Outcome: domain.OutcomeUpdated}, nil
}

// link demotes a freshly inserted row when an older canonical row at the same venue and
// date is the same event under a slightly different title. Links only ever point at rows
// that sort before ev, so concurrent inserts cannot link to each other. Errors are logged
// and ignored.
func (e *Engine) link(ctx context.Context, res *Result) {
	ev := res.Event
	if !e.cfg.FuzzyEnabled || ev.VenueKey == "" {
		return
	}

	same, err := e.events.FindSameDay(ctx, ev.VenueKey, ev.StartDate)
	if err != nil {
		logger.FromContext(ctx, e.log).Warn("Near-duplicate lookup failed",
			logger.String("event_id", ev.ID),
			logger.Error(err),
		)
		return
	}
	for _, other := range same {
		if !sortsBefore(other, ev) {
			break
		}
		if !other.IsCanonical() {
			continue
		}
		if !IsNearDuplicate(other, ev, e.cfg.FuzzyThreshold) {
			continue
		}
		if err = e.events.MarkDuplicate(ctx, ev.ID, other.ID); err != nil {
			if errors.Is(err, store.ErrNotCanonical) {
				logger.FromContext(ctx, e.log).Debug("Near-duplicate changed before linking",
					logger.String("event_id", ev.ID),
					logger.String("canonical_id", other.ID),
				)
				return
			}
			logger.FromContext(ctx, e.log).Warn("Linking near-duplicate failed",
				logger.String("event_id", ev.ID),
				logger.String("canonical_id", other.ID),
				logger.Error(err),
			)
			return
		}
		id := other.ID
		ev.CanonicalEventID = &id
		res.Linked = true
		logger.FromContext(ctx, e.log).Debug("Linked near-duplicate event",
			logger.String("event_id", ev.ID),
			logger.String("canonical_id", other.ID),
			logger.Float64("similarity", Similarity(other.Title, ev.Title)),
		)
		return
	}
}

// sortsBefore reports whether a precedes b in the FindSameDay order.
func sortsBefore(a, b *domain.Event) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// VenueKey is the grouping key for the near-duplicate pass.
func VenueKey(c *domain.RawEventCandidate) string {
	if c.VenueID != nil && *c.VenueID != "" {
		return "id:" + *c.VenueID
	}
	return fingerprint.Normalize(c.VenueName)
}

func newEvent(src *domain.Source, c *domain.RawEventCandidate, hash string, now time.Time) *domain.Event {
	return &domain.Event{
		SourceID:       src.ID,
		VenueID:        c.VenueID,
		Title:          strings.TrimSpace(c.Title),
		Description:    c.Description,
		StartDate:      domain.DateOnly(c.StartDate),
		StartTime:      c.StartTime,
		EndDate:        c.EndDate,
		EndTime:        c.EndTime,
		IsAllDay:       c.IsAllDay && c.StartTime == nil,
		VenueName:      strings.TrimSpace(c.VenueName),
		VenueAddress:   c.VenueAddress,
		VenueKey:       VenueKey(c),
		PriceMin:       c.PriceMin,
		PriceMax:       c.PriceMax,
		IsFree:         c.IsFree,
		TicketURL:      c.TicketURL,
		SourceURL:      c.SourceURL,
		ImageURL:       c.ImageURL,
		Tags:           pq.StringArray(domain.NormalizeTags(c.Tags)),
		Confidence:     c.Confidence,
		SourcePriority: src.EffectivePriority(),
		ContentHash:    hash,
		FirstSeenAt:    now,
		LastSeenAt:     now,
	}
}
