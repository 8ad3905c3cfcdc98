package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/scheduler"
)

func newScheduleCommand() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Crawl all active sources on the orchestrator.schedule cron expression",
		Long: `Run crawl cycles on a cron schedule until interrupted. A cycle still running
when the next one is due makes that tick a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				ctx := cmd.Context()
				sched, err := scheduler.New(a.orchestrator(ctx, false), a.cfg.Orchestrator.Schedule, a.log)
				if err != nil {
					return err
				}

				sched.Start(ctx)
				defer sched.Stop()
				if runNow {
					sched.Trigger(ctx)
				}

				<-ctx.Done()
				a.log.Info("Scheduler shutting down", logger.String("reason", context.Cause(ctx).Error()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "start a cycle immediately instead of waiting for the first tick")
	return cmd
}
