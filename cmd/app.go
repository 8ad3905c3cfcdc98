package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/apijson"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/feed"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/htmlsel"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/jsonld"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/llm"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/rendered"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/classifier"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/coordination"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/merge"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/search"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/store/memory"
)

// eventStore is what the commands need from the event side of a store.
type eventStore interface {
	store.EventStore
	store.Purger
}

// app holds the collaborators shared by the commands. Close releases them in reverse order.
type app struct {
	cfg *config.Config
	log logger.Logger

	db      *sqlx.DB
	sources store.SourceStore
	events  eventStore
	runs    store.RunStore

	fetcher  *fetch.Client
	browser  *rendered.Browser
	registry *prometheus.Registry

	closers []func() error
}

type appOptions struct {
	// dryRun keeps events, runs and classifications in memory. Sources are still read
	// from the database unless the caller seeds them.
	dryRun bool
	// skipDB builds an app with in-memory stores only.
	skipDB bool
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      log,
		fetcher:  fetch.NewClient(cfg.Fetch, log),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mem := memory.New()
	a.sources, a.events, a.runs = mem, mem, mem

	if !opts.skipDB {
		db, err := database.NewPostgresConnection(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db.Close)

		if opts.dryRun {
			if err = seedSources(ctx, database.NewSourceRepository(db), mem); err != nil {
				a.Close()
				return nil, err
			}
		} else {
			a.sources = database.NewSourceRepository(db)
			a.events = database.NewEventRepository(db)
			a.runs = database.NewRunRepository(db)
		}
	}
	return a, nil
}

// seedSources copies every source, classification included, into the in-memory store.
func seedSources(ctx context.Context, from store.SourceStore, to *memory.Store) error {
	sources, err := from.List(ctx, false)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	for _, src := range sources {
		if err = to.Upsert(ctx, src); err != nil {
			return fmt.Errorf("seed source %s: %w", src.Slug, err)
		}
	}
	return nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Close failed", logger.Error(err))
		}
	}
	a.closers = nil
}

func (a *app) auditor() *classifier.Auditor {
	return classifier.NewAuditor(classifier.New(a.fetcher, a.cfg.Classifier, a.log), a.sources, a.log)
}

// adapters registers a generic adapter factory for every integration method.
func (a *app) adapters() *adapter.Registry {
	reg := adapter.NewRegistry()

	structured := jsonld.Factory(a.fetcher, a.log)
	reg.RegisterMethod(domain.MethodFeed, feed.Factory(a.fetcher, a.log))
	reg.RegisterMethod(domain.MethodAPI, apijson.Factory(a.fetcher, a.log))
	reg.RegisterMethod(domain.MethodJSONLD, structured)
	reg.RegisterMethod(domain.MethodAggregator, structured)
	reg.RegisterMethod(domain.MethodHTML, htmlsel.Factory(a.htmlselConfig(), a.log))

	if a.browser == nil {
		a.browser = rendered.NewBrowser(a.cfg.Browser, a.log)
		a.closers = append(a.closers, a.browser.Close)
	}
	reg.RegisterMethod(domain.MethodPlaywright, rendered.Factory(a.browser, a.log))

	generative := llm.Factory(a.fetcher, a.cfg.LLM, a.log)
	reg.RegisterMethod(domain.MethodLLM, generative)
	reg.RegisterMethod(domain.MethodUnknown, generative)
	return reg
}

func (a *app) htmlselConfig() htmlsel.Config {
	cfg := htmlsel.Config{
		UserAgent:    a.cfg.Fetch.UserAgent,
		Timeout:      a.cfg.Fetch.Timeout,
		MaxBodyBytes: int(a.cfg.Fetch.MaxBodyBytes),
	}
	if rps := a.cfg.Fetch.RequestsPerSecond; rps > 0 {
		cfg.Delay = time.Duration(float64(time.Second) / rps)
	}
	return cfg
}

// orchestrator wires the crawl pipeline. Redis locking and search publishing are attached
// only when enabled and reachable; a dry run never uses either.
func (a *app) orchestrator(ctx context.Context, dryRun bool) *orchestrator.Orchestrator {
	deps := orchestrator.Deps{
		Sources:  a.sources,
		Runs:     a.runs,
		Registry: a.adapters(),
		Engine:   merge.New(a.events, a.cfg.Merge, a.log),
		Auditor:  a.auditor(),
		Metrics:  orchestrator.NewMetrics(a.registry),
	}

	if !dryRun {
		if locker := a.locker(ctx); locker != nil {
			deps.Locker = locker
		}
		if sink := a.sink(ctx); sink != nil {
			deps.Sink = sink
		}
	}

	return orchestrator.New(deps, a.cfg.Orchestrator, a.log)
}

func (a *app) locker(ctx context.Context) *coordination.SourceLocker {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	client, err := coordination.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		a.log.Warn("Redis unavailable, running without source locks", logger.Error(err))
		return nil
	}
	a.closers = append(a.closers, client.Close)
	return coordination.NewSourceLocker(client, a.cfg.Redis)
}

func (a *app) sink(ctx context.Context) *search.Indexer {
	if !a.cfg.Elasticsearch.Enabled {
		return nil
	}
	client, err := search.NewClient(ctx, a.cfg.Elasticsearch, a.log)
	if err != nil {
		a.log.Warn("Elasticsearch unavailable, events will not be indexed", logger.Error(err))
		return nil
	}
	indexer := search.NewIndexer(client, a.cfg.Elasticsearch.Index)
	if err = indexer.EnsureIndex(ctx); err != nil {
		a.log.Warn("Could not ensure search index", logger.Error(err))
		return nil
	}
	return indexer
}
