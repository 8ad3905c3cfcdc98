package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/coordination"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/crawlerr"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

// RunAll crawls every active source concurrently. A failing source never affects another.
func (o *Orchestrator) RunAll(ctx context.Context) (*Summary, error) {
	sources, err := o.deps.Sources.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	plans := o.Plan(sources)
	summary := &Summary{Sources: len(plans)}

	// Workers never return an error: one source failing must not cancel the others.
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, p := range plans {
		g.Go(func() error {
			run, runErr := o.RunSource(ctx, p)

			mu.Lock()
			defer mu.Unlock()
			if runErr != nil || run == nil {
				summary.Skipped++
				return nil
			}
			summary.add(run)
			return nil
		})
	}
	_ = g.Wait()

	o.log.Info("Crawl cycle finished",
		logger.Int("sources", summary.Sources),
		logger.Int("succeeded", summary.Succeeded),
		logger.Int("failed", summary.Failed),
		logger.Int("timed_out", summary.TimedOut),
		logger.Int("skipped", summary.Skipped),
		logger.Int("events_found", summary.Found),
		logger.Int("events_new", summary.New),
		logger.Int("events_updated", summary.Updated),
	)
	return summary, nil
}

// execute performs one run under sl and returns it with the failure cause, if any.
func (o *Orchestrator) execute(ctx context.Context, p Planned, sl *slot) (*domain.CrawlRun, error) {
	src := p.Source
	log := logger.FromContext(ctx, o.log).With(logger.String("source", src.Slug), logger.String("method", string(src.IntegrationMethod)))

	if o.deps.Locker != nil {
		unlock, err := o.deps.Locker.Guard(ctx, src.ID)
		switch {
		case errors.Is(err, coordination.ErrLockHeld):
			log.Info("Source locked by another process, skipping")
			return nil, ErrSourceBusy
		case err != nil:
			log.Warn("Source lock unavailable, crawling without it", logger.Error(err))
		default:
			defer func() {
				releaseCtx, cancel := finalizeContext(ctx)
				defer cancel()
				if relErr := unlock(releaseCtx); relErr != nil {
					log.Warn("Failed to release source lock", logger.Error(relErr))
				}
			}()
		}
	}

	run := &domain.CrawlRun{
		SourceID:  src.ID,
		Method:    src.IntegrationMethod,
		Status:    domain.RunPending,
		StartedAt: o.now().UTC(),
	}
	if err := o.deps.Runs.Create(ctx, run); err != nil {
		log.Error("Failed to record crawl run", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrRunFailed, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()
	runCtx = logger.WithContext(runCtx, log)

	if p.Audit {
		p = o.audit(runCtx, p)
		run.Method = src.IntegrationMethod
	}
	if p.Err != nil {
		status, cause := o.classify(ctx, runCtx, p.Err)
		if status == domain.RunSuccess {
			status = domain.RunFailed
		}
		return o.finish(ctx, log, src, run, status, cause, nil)
	}
	if p.Renderer && !sl.renderer {
		rsl, err := o.acquire(runCtx, true)
		if err != nil {
			status, cause := o.classify(ctx, runCtx, err)
			return o.finish(ctx, log, src, run, status, cause, nil)
		}
		defer rsl.close()
		sl = rsl
	}

	o.transition(log, run, domain.RunRunning)
	if err := o.deps.Runs.Save(ctx, run); err != nil {
		log.Warn("Failed to mark run running", logger.Error(err))
	}

	candidates, extractErr := o.extract(runCtx, log, p, sl)
	status, cause := o.classify(ctx, runCtx, extractErr)
	if status == domain.RunFailed || status == domain.RunTimedOut {
		return o.finish(ctx, log, src, run, status, cause, nil)
	}
	if extractErr != nil {
		log.Warn("Rate limited, reconciling partial results",
			logger.Int("candidates", len(candidates)),
			logger.Error(extractErr),
		)
	}

	touched := make([]*domain.Event, 0, len(candidates))
	for _, c := range candidates {
		if runCtx.Err() != nil {
			break
		}
		res, err := o.deps.Engine.Reconcile(runCtx, src, c)
		if err != nil {
			if crawlerr.IsValidation(err) {
				run.EventsSkipped++
				log.Warn("Dropped candidate", logger.String("title", c.Title), logger.Error(err))
				continue
			}
			if runCtx.Err() != nil {
				break
			}
			return o.finish(ctx, log, src, run, domain.RunFailed, err, touched)
		}

		run.EventsFound++
		switch res.Outcome {
		case domain.OutcomeNew:
			run.EventsNew++
		case domain.OutcomeUpdated:
			run.EventsUpdated++
		}
		if o.deps.Metrics != nil {
			o.deps.Metrics.EventsTotal.WithLabelValues(string(res.Outcome)).Inc()
		}
		touched = append(touched, res.Event)
	}

	if status, cause = o.classify(ctx, runCtx, nil); status != domain.RunSuccess {
		return o.finish(ctx, log, src, run, status, cause, touched)
	}
	return o.finish(ctx, log, src, run, domain.RunSuccess, extractErr, touched)
}

// classify maps an extraction error and the state of the run budget to a run status.
// Success is returned for no error and for a rate limit with partial results.
func (o *Orchestrator) classify(parent, runCtx context.Context, err error) (domain.RunStatus, error) {
	switch {
	case parent.Err() != nil:
		return domain.RunFailed, parent.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return domain.RunTimedOut, fmt.Errorf("run exceeded %s: %w", o.cfg.RunTimeout, context.DeadlineExceeded)
	case err == nil, crawlerr.IsRateLimited(err):
		return domain.RunSuccess, nil
	default:
		return domain.RunFailed, err
	}
}

type extraction struct {
	candidates []domain.RawEventCandidate
	err        error
}

// extract calls the adapter, retrying network failures with backoff inside the run budget.
func (o *Orchestrator) extract(ctx context.Context, log logger.Logger, p Planned, sl *slot) ([]domain.RawEventCandidate, error) {
	var candidates []domain.RawEventCandidate
	attempt := 0

	operation := func() error {
		attempt++
		got, err := o.extractOnce(ctx, p, sl)
		candidates = got
		if err == nil || crawlerr.IsRateLimited(err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		if !crawlerr.IsRetryable(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		log.Debug("Extraction failed, retrying", logger.Int("attempt", attempt), logger.Error(err))
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.RetryInitialInterval
	policy.MaxElapsedTime = 0
	retries := uint64(max(o.cfg.ExtractAttempts-1, 0))

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	return candidates, err
}

// extractOnce runs the adapter in its own goroutine so a non-cooperative adapter cannot
// hold the run past its budget. The call keeps sl occupied until it returns, so an
// abandoned browser tab still counts against the renderer cap. A panicking adapter
// fails only its own run.
func (o *Orchestrator) extractOnce(ctx context.Context, p Planned, sl *slot) ([]domain.RawEventCandidate, error) {
	done := make(chan extraction, 1)
	sl.begin()
	go func() {
		defer sl.end()
		defer func() {
			if r := recover(); r != nil {
				done <- extraction{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		got, err := p.Adapter.Extract(ctx, p.Source)
		done <- extraction{candidates: got, err: err}
	}()

	select {
	case res := <-done:
		return res.candidates, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) transition(log logger.Logger, run *domain.CrawlRun, to domain.RunStatus) {
	if err := ValidateTransition(run.Status, to); err != nil {
		log.Error("Invalid run transition", logger.Error(err))
		return
	}
	run.Status = to
}

// finish records the terminal state of run. Reconciled events stand whatever the status.
func (o *Orchestrator) finish(
	ctx context.Context,
	log logger.Logger,
	src *domain.Source,
	run *domain.CrawlRun,
	status domain.RunStatus,
	cause error,
	touched []*domain.Event,
) (*domain.CrawlRun, error) {
	o.transition(log, run, status)
	finished := o.now().UTC()
	run.FinishedAt = &finished
	if cause != nil {
		msg := cause.Error()
		run.ErrorMessage = &msg
	}

	saveCtx, cancel := finalizeContext(ctx)
	defer cancel()

	if err := o.deps.Runs.Save(saveCtx, run); err != nil {
		log.Error("Failed to save crawl run", logger.String("run_id", run.ID), logger.Error(err))
	}

	fields := []logger.Field{
		logger.String("run_id", run.ID),
		logger.String("status", string(run.Status)),
		logger.Int("events_found", run.EventsFound),
		logger.Int("events_new", run.EventsNew),
		logger.Int("events_updated", run.EventsUpdated),
		logger.Int("events_skipped", run.EventsSkipped),
		logger.Duration("duration", run.Duration()),
	}
	switch {
	case run.Status == domain.RunSuccess:
		log.Info("Crawl run finished", fields...)
	case crawlerr.LevelOf(cause) == crawlerr.LevelWarn:
		log.Warn("Crawl run finished", append(fields, logger.Error(cause))...)
	default:
		log.Error("Crawl run finished", append(fields, logger.Error(cause))...)
	}

	if m := o.deps.Metrics; m != nil {
		m.RunsTotal.WithLabelValues(string(run.Status), string(run.Method)).Inc()
		m.RunDurationSeconds.WithLabelValues(string(run.Method)).Observe(run.Duration().Seconds())
	}

	o.publish(saveCtx, log, touched)
	if run.Status == domain.RunSuccess && run.EventsFound == 0 {
		o.checkZeroYield(saveCtx, log, src)
	}

	switch run.Status {
	case domain.RunSuccess:
		return run, nil
	case domain.RunTimedOut:
		return run, fmt.Errorf("%w: %w", ErrRunTimedOut, cause)
	default:
		return run, fmt.Errorf("%w: %w", ErrRunFailed, cause)
	}
}

func (o *Orchestrator) publish(ctx context.Context, log logger.Logger, events []*domain.Event) {
	if o.deps.Sink == nil || len(events) == 0 {
		return
	}
	if err := o.deps.Sink.Publish(ctx, events); err != nil {
		log.Warn("Failed to publish events", logger.Int("events", len(events)), logger.Error(err))
		if o.deps.Metrics != nil {
			o.deps.Metrics.SinkErrors.Inc()
		}
	}
}

// checkZeroYield deactivates src when its last ZeroYieldThreshold runs all succeeded empty.
func (o *Orchestrator) checkZeroYield(ctx context.Context, log logger.Logger, src *domain.Source) {
	threshold := o.cfg.ZeroYieldThreshold
	if threshold == 0 {
		return
	}

	recent, err := o.deps.Runs.Recent(ctx, src.ID, threshold)
	if err != nil {
		log.Warn("Failed to load recent runs", logger.Error(err))
		return
	}
	if len(recent) < threshold {
		return
	}
	for _, r := range recent {
		if r.Status != domain.RunSuccess || r.EventsFound > 0 {
			return
		}
	}

	reason := fmt.Sprintf("zero yield for %d consecutive runs", threshold)
	if err = o.deps.Sources.Deactivate(ctx, src.ID, reason); err != nil {
		log.Error("Failed to deactivate source", logger.Error(err))
		return
	}
	src.IsActive = false
	src.DeactivatedReason = &reason
	if o.deps.Metrics != nil {
		o.deps.Metrics.SourcesDeactivated.Inc()
	}
	log.Warn("Deactivated source", logger.String("reason", reason))
}
