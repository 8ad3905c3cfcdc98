// Package orchestrator runs one crawl per source: it resolves the adapter, bounds the
// run in time, reconciles every candidate and records the outcome as a CrawlRun.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/merge"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
)

var (
	// ErrSourceBusy is returned when another process holds the source's lock.
	ErrSourceBusy = errors.New("source is being crawled elsewhere")
	// ErrRunFailed wraps the cause of a failed run.
	ErrRunFailed = errors.New("crawl run failed")
	// ErrRunTimedOut is returned when a run exceeds its budget.
	ErrRunTimedOut = errors.New("crawl run timed out")
)

// Resolver maps a source to its adapter.
type Resolver interface {
	Resolve(src *domain.Source) (adapter.Adapter, error)
}

// Reconciler merges one candidate into the catalog.
type Reconciler interface {
	Reconcile(ctx context.Context, src *domain.Source, c domain.RawEventCandidate) (*merge.Result, error)
}

// Auditor determines the integration method of a source.
type Auditor interface {
	Audit(ctx context.Context, src *domain.Source, force bool) (domain.IntegrationMethod, error)
}

// Locker guards a source against concurrent runs in other processes.
type Locker interface {
	Guard(ctx context.Context, sourceID string) (func(context.Context) error, error)
}

// Sink receives the canonical events touched by a run.
type Sink interface {
	Publish(ctx context.Context, events []*domain.Event) error
}

// Deps are the collaborators of an Orchestrator. Auditor, Locker, Sink and Metrics are optional.
type Deps struct {
	Sources  store.SourceStore
	Runs     store.RunStore
	Registry Resolver
	Engine   Reconciler
	Auditor  Auditor
	Locker   Locker
	Sink     Sink
	Metrics  *Metrics
}

// Orchestrator schedules and records crawl runs.
type Orchestrator struct {
	deps      Deps
	cfg       Config
	log       logger.Logger
	workers   *semaphore.Weighted
	renderers *semaphore.Weighted
	now       func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config, log logger.Logger) *Orchestrator {
	cfg.SetDefaults()
	return &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		log:       log,
		workers:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		renderers: semaphore.NewWeighted(int64(cfg.MaxRenderers)),
		now:       time.Now,
	}
}

// Planned is a source with its resolved adapter. Err is set when resolution failed;
// the run is then recorded as failed without extraction. Audit is set for sources whose
// method is unknown: they are audited and resolved inside their own run.
type Planned struct {
	Source   *domain.Source
	Adapter  adapter.Adapter
	Renderer bool
	Audit    bool
	Err      error
}

// Plan resolves each source's adapter once at the start of a cycle.
func (o *Orchestrator) Plan(sources []*domain.Source) []Planned {
	plans := make([]Planned, 0, len(sources))
	for _, src := range sources {
		if src.IntegrationMethod == domain.MethodUnknown && o.deps.Auditor != nil {
			plans = append(plans, Planned{Source: src, Audit: true})
			continue
		}
		plans = append(plans, o.resolve(src))
	}
	return plans
}

func (o *Orchestrator) resolve(src *domain.Source) Planned {
	p := Planned{Source: src}
	a, err := o.deps.Registry.Resolve(src)
	if err != nil {
		p.Err = err
		return p
	}
	p.Adapter = a
	p.Renderer = adapter.RequiresRenderer(a, src)
	return p
}

// audit determines the method of p's source under the run budget and resolves its adapter.
func (o *Orchestrator) audit(ctx context.Context, p Planned) Planned {
	if _, err := o.deps.Auditor.Audit(ctx, p.Source, false); err != nil {
		return Planned{Source: p.Source, Err: fmt.Errorf("audit: %w", err)}
	}
	return o.resolve(p.Source)
}

// Summary aggregates the runs of one cycle.
type Summary struct {
	Sources   int
	Succeeded int
	Failed    int
	TimedOut  int
	Skipped   int
	Found     int
	New       int
	Updated   int
}

func (s *Summary) add(run *domain.CrawlRun) {
	switch run.Status {
	case domain.RunSuccess:
		s.Succeeded++
	case domain.RunTimedOut:
		s.TimedOut++
	default:
		s.Failed++
	}
	s.Found += run.EventsFound
	s.New += run.EventsNew
	s.Updated += run.EventsUpdated
}

// Crawl runs the source with slug and returns its counts. The error is the run's
// failure cause, wrapped in ErrRunFailed or ErrRunTimedOut.
func (o *Orchestrator) Crawl(ctx context.Context, slug string) (found, created, updated int, err error) {
	src, err := o.deps.Sources.GetBySlug(ctx, slug)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("load source %s: %w", slug, err)
	}

	run, cause := o.runPlanned(ctx, o.Plan([]*domain.Source{src})[0])
	if run == nil {
		return 0, 0, 0, cause
	}
	return run.EventsFound, run.EventsNew, run.EventsUpdated, cause
}

// RunSource executes one planned source and returns its finished run. The error is
// non-nil only when no run could be recorded, such as ErrSourceBusy.
func (o *Orchestrator) RunSource(ctx context.Context, p Planned) (*domain.CrawlRun, error) {
	run, cause := o.runPlanned(ctx, p)
	if run == nil {
		return nil, cause
	}
	return run, nil
}

func (o *Orchestrator) runPlanned(ctx context.Context, p Planned) (*domain.CrawlRun, error) {
	sl, err := o.acquire(ctx, p.Renderer)
	if err != nil {
		return nil, err
	}
	defer sl.close()
	return o.execute(ctx, p, sl)
}

// slot is one unit of a concurrency cap. It is given back once the run is done and
// every adapter call made under it has returned, which can be after a timed-out run
// has already been recorded.
type slot struct {
	o        *Orchestrator
	renderer bool

	mu     sync.Mutex
	calls  int
	closed bool
}

func (o *Orchestrator) acquire(ctx context.Context, renderer bool) (*slot, error) {
	sem, class := o.semaphore(renderer)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.RunsInFlight.WithLabelValues(class).Inc()
	}
	return &slot{o: o, renderer: renderer}, nil
}

func (o *Orchestrator) semaphore(renderer bool) (*semaphore.Weighted, string) {
	if renderer {
		return o.renderers, "renderer"
	}
	return o.workers, "light"
}

func (s *slot) begin() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *slot) end() {
	s.mu.Lock()
	s.calls--
	free := s.closed && s.calls == 0
	s.mu.Unlock()
	if free {
		s.free()
	}
}

func (s *slot) close() {
	s.mu.Lock()
	s.closed = true
	free := s.calls == 0
	s.mu.Unlock()
	if free {
		s.free()
	}
}

func (s *slot) free() {
	sem, class := s.o.semaphore(s.renderer)
	if s.o.deps.Metrics != nil {
		s.o.deps.Metrics.RunsInFlight.WithLabelValues(class).Dec()
	}
	sem.Release(1)
}

// finalizeContext outlives a cancelled run so its outcome is still recorded.
func finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}
