// Package cmd implements the event-crawler command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug forces debug-level logging for all commands.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "event-crawler",
		Short: "Crawl venue and aggregator sites into a deduplicated event catalog",
		Long: `event-crawler classifies each source's site, extracts events with the matching
adapter and reconciles them into one canonical record per real-world event.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config.yml or ./config/config.yml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newCrawlCommand(),
		newAuditCommand(),
		newSourcesCommand(),
		newRunsCommand(),
		newScheduleCommand(),
		newServeCommand(),
		newMigrateCommand(),
		newCleanupCommand(),
	)
}

// bootstrap loads configuration and builds the logger.
func bootstrap() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.App.Debug = true
		cfg.Logger.Level = "debug"
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log.With(logger.String("service", cfg.App.Name)), nil
}

// withApp bootstraps, builds the app, runs fn and releases everything afterwards.
func withApp(ctx context.Context, opts appOptions, fn func(*app) error) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := newApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
