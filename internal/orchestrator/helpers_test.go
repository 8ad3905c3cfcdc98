package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/merge"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store/memory"
)

type harness struct {
	store    *memory.Store
	registry *adapter.Registry
	engine   *merge.Engine
	metrics  *orchestrator.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	s := memory.New()
	return &harness{
		store:    s,
		registry: adapter.NewRegistry(),
		engine:   merge.New(s, merge.Config{FuzzyEnabled: true}, logger.NewNop()),
		metrics:  orchestrator.NewMetrics(prometheus.NewRegistry()),
	}
}

func (h *harness) addSource(t *testing.T, slug string, method domain.IntegrationMethod, a adapter.Adapter) *domain.Source {
	t.Helper()

	src := &domain.Source{
		Slug:              slug,
		Name:              slug,
		URL:               "https://" + slug + ".example",
		IntegrationMethod: method,
		IsActive:          true,
	}
	require.NoError(t, h.store.Upsert(context.Background(), src))
	if a != nil {
		require.NoError(t, h.registry.Register(slug, a))
	}
	return src
}

func (h *harness) deps() orchestrator.Deps {
	return orchestrator.Deps{
		Sources:  h.store,
		Runs:     h.store,
		Registry: h.registry,
		Engine:   h.engine,
		Metrics:  h.metrics,
	}
}

func (h *harness) orchestrator(cfg orchestrator.Config) *orchestrator.Orchestrator {
	return orchestrator.New(h.deps(), cfg, logger.NewNop())
}

func (h *harness) lastRun(t *testing.T, sourceID string) *domain.CrawlRun {
	t.Helper()

	runs, err := h.store.Recent(context.Background(), sourceID, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func day(offset int) time.Time {
	return domain.DateOnly(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset))
}

func candidates(n int) []domain.RawEventCandidate {
	out := make([]domain.RawEventCandidate, n)
	for i := range out {
		out[i] = domain.RawEventCandidate{
			Title:      fmt.Sprintf("Show %d", i+1),
			VenueName:  "The Eastern",
			StartDate:  day(i),
			Confidence: 0.8,
		}
	}
	return out
}

// stallingEngine reconciles the first limit candidates and then blocks until the run is cancelled.
type stallingEngine struct {
	inner *merge.Engine
	limit int32
	calls atomic.Int32
}

func (s *stallingEngine) Reconcile(
	ctx context.Context, src *domain.Source, c domain.RawEventCandidate,
) (*merge.Result, error) {
	if s.calls.Add(1) > s.limit {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.inner.Reconcile(ctx, src, c)
}

// concurrencyGauge is an adapter that records how many of its kind run at once.
type concurrencyGauge struct {
	browser bool
	hold    time.Duration
	mu      *sync.Mutex
	active  *int
	peak    *int
}

func (p concurrencyGauge) UsesBrowser() bool { return p.browser }

func (p concurrencyGauge) Extract(ctx context.Context, _ *domain.Source) ([]domain.RawEventCandidate, error) {
	p.mu.Lock()
	*p.active++
	if *p.active > *p.peak {
		*p.peak = *p.active
	}
	p.mu.Unlock()

	select {
	case <-time.After(p.hold):
	case <-ctx.Done():
	}

	p.mu.Lock()
	*p.active--
	p.mu.Unlock()
	return nil, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []*domain.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

type fakeLocker struct {
	err      error
	released atomic.Int32
}

func (f *fakeLocker) Guard(_ context.Context, _ string) (func(context.Context) error, error) {
	if f.err != nil {
		return nil, f.err
	}
	return func(context.Context) error {
		f.released.Add(1)
		return nil
	}, nil
}
