package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const defaultRunsListLimit = 25

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect crawl runs",
	}

	var (
		slug  string
		limit int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent crawl runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				ctx := cmd.Context()
				sources, err := a.sources.List(ctx, false)
				if err != nil {
					return fmt.Errorf("list sources: %w", err)
				}
				slugs := make(map[string]string, len(sources))
				var sourceID string
				for _, src := range sources {
					slugs[src.ID] = src.Slug
					if src.Slug == slug {
						sourceID = src.ID
					}
				}
				if slug != "" && sourceID == "" {
					return fmt.Errorf("unknown source %q", slug)
				}

				runs, err := a.runs.Recent(ctx, sourceID, limit)
				if err != nil {
					return fmt.Errorf("list runs: %w", err)
				}
				renderRuns(cmd.OutOrStdout(), runs, slugs)
				return nil
			})
		},
	}
	list.Flags().StringVar(&slug, "source", "", "only runs of this source")
	list.Flags().IntVar(&limit, "limit", defaultRunsListLimit, "maximum runs to show")

	cmd.AddCommand(list)
	return cmd
}
