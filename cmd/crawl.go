package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

func newCrawlCommand() *cobra.Command {
	var (
		slug        string
		dryRun      bool
		sourcesFile string
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every active source, or one source",
		Long: `Crawl every active source once and print a summary. With --source only that
source is crawled. --dry-run keeps events, runs and classifications in memory;
combined with --sources-file it needs no database at all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sourcesFile != "" && !dryRun {
				return errors.New("--sources-file requires --dry-run; use 'sources import' to persist sources")
			}
			opts := appOptions{dryRun: dryRun, skipDB: dryRun && sourcesFile != ""}

			return withApp(cmd.Context(), opts, func(a *app) error {
				if sourcesFile != "" {
					res, err := importFile(cmd.Context(), sourcesFile, a.sources)
					if err != nil {
						return err
					}
					renderImportErrors(cmd.ErrOrStderr(), res.Errors)
				}
				return runCrawl(cmd, a, slug, dryRun)
			})
		},
	}

	cmd.Flags().StringVar(&slug, "source", "", "crawl only the source with this slug")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "do not persist events, runs or classifications")
	cmd.Flags().StringVar(&sourcesFile, "sources-file", "", "YAML or XLSX sources for a dry run")
	return cmd
}

func runCrawl(cmd *cobra.Command, a *app, slug string, dryRun bool) error {
	ctx := cmd.Context()
	orch := a.orchestrator(ctx, dryRun)

	if slug != "" {
		found, created, updated, err := orch.Crawl(ctx, slug)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: found=%d new=%d updated=%d\n", slug, found, created, updated)
		return err
	}

	summary, err := orch.RunAll(ctx)
	if err != nil {
		return err
	}
	renderSummary(cmd.OutOrStdout(), summary)
	if dryRun {
		logDryRunEvents(ctx, a)
	}
	return nil
}

func logDryRunEvents(ctx context.Context, a *app) {
	events, err := a.events.ListUpcoming(ctx, time.Now(), 0)
	if err != nil {
		return
	}
	for _, e := range events {
		a.log.Info("Dry-run event",
			logger.String("title", e.Title),
			logger.String("date", e.StartDate.Format("2006-01-02")),
			logger.String("venue", e.VenueName),
			logger.String("source_id", e.SourceID),
		)
	}
}
