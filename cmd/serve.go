package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/api"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/scheduler"
)

func newServeCommand() *cobra.Command {
	var withSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				ctx := cmd.Context()
				orch := a.orchestrator(ctx, false)

				if withSchedule {
					sched, err := scheduler.New(orch, a.cfg.Orchestrator.Schedule, a.log)
					if err != nil {
						return err
					}
					sched.Start(ctx)
					defer sched.Stop()
				}

				handler := api.NewHandler(a.sources, a.runs, a.events, a.auditor(), orch, a.log)
				cfg := a.cfg.Server
				cfg.Debug = cfg.Debug || a.cfg.App.Debug
				srv := api.NewServer(cfg, a.log, func(r *gin.Engine) {
					handler.Routes(r, a.registry)
				})
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "also run crawl cycles on the configured cron schedule")
	return cmd
}
