// Package scheduler triggers crawl cycles on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/orchestrator"
)

// Runner executes one crawl cycle.
type Runner interface {
	RunAll(ctx context.Context) (*orchestrator.Summary, error)
}

// Scheduler runs crawl cycles on a cron expression. A trigger that fires while a
// cycle is still running is skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	runner   Runner
	log      logger.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Scheduler for a standard five-field cron expression.
func New(runner Runner, expr string, log logger.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression %q: %w", expr, err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		schedule: schedule,
		runner:   runner,
		log:      log,
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.Trigger(s.ctx) }))
	return s, nil
}

// NextRun returns the next time the schedule fires after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start begins firing the schedule. Cycles use a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Time("next_run", s.NextRun(time.Now())))
}

// Stop halts the schedule, cancels a running cycle and waits for it to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// Trigger runs a cycle now unless one is already running. It reports whether a cycle ran.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("Previous crawl cycle still running, skipping trigger")
		return false
	}
	s.wg.Add(1)
	defer func() {
		s.running.Store(false)
		s.wg.Done()
	}()

	start := time.Now()
	summary, err := s.runner.RunAll(ctx)
	if err != nil {
		s.log.Error("Crawl cycle failed", logger.Error(err))
		return true
	}
	s.log.Info("Crawl cycle complete",
		logger.Int("sources", summary.Sources),
		logger.Int("events_found", summary.Found),
		logger.Duration("duration", time.Since(start)),
	)
	return true
}
