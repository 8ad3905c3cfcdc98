package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

const cutoffLayout = "2006-01-02"

func newCleanupCommand() *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete events that started before a date",
		Long: `Delete events whose start date is before --before (default today), together with
duplicate rows linked to them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cutoff, err := parseCutoff(before, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				n, err := a.events.PurgeBefore(cmd.Context(), cutoff)
				if err != nil {
					return fmt.Errorf("purge events: %w", err)
				}
				a.log.Info("Purged past events",
					logger.String("before", cutoff.Format(cutoffLayout)),
					logger.Int64("deleted", n),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events dated before %s\n", n, cutoff.Format(cutoffLayout))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "cutoff date as YYYY-MM-DD (default today)")
	return cmd
}

// parseCutoff returns the UTC date for s, or now's date when s is empty.
func parseCutoff(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(cutoffLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--before must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}
