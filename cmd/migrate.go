package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				if err := database.RunMigrations(a.db); err != nil {
					return err
				}
				return printVersion(cmd, a)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				a.log.Warn("Rolling back migrations", logger.Int("steps", steps))
				if err := database.MigrateDown(a.db, steps); err != nil {
					return err
				}
				return printVersion(cmd, a)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				return printVersion(cmd, a)
			})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the migration version without running migrations, clearing the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer: %w", err)
			}
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				if err = database.ForceMigrationVersion(a.db, v); err != nil {
					return err
				}
				return printVersion(cmd, a)
			})
		},
	}

	cmd.AddCommand(up, down, version, force)
	return cmd
}

func printVersion(cmd *cobra.Command, a *app) error {
	v, dirty, err := database.MigrationVersion(a.db)
	if err != nil {
		return err
	}
	if v == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration version %d (dirty=%t)\n", v, dirty)
	return nil
}
