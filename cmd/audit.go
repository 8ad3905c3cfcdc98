package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/classifier"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

func newAuditCommand() *cobra.Command {
	var (
		force  bool
		rawURL string
	)

	cmd := &cobra.Command{
		Use:   "audit [slug]",
		Short: "Classify a source's integration method",
		Long: `Probe a source's site and record the recommended integration method. A cached
method is kept unless --force is given. --url classifies any address without
touching the database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case rawURL != "" && len(args) > 0:
				return errors.New("give either a slug or --url, not both")
			case rawURL == "" && len(args) == 0:
				return errors.New("a source slug or --url is required")
			}

			return withApp(cmd.Context(), appOptions{skipDB: rawURL != ""}, func(a *app) error {
				if rawURL != "" {
					res, err := classifier.New(a.fetcher, a.cfg.Classifier, a.log).Classify(cmd.Context(), rawURL)
					if err != nil {
						return fmt.Errorf("classify %s: %w", rawURL, err)
					}
					renderClassification(cmd.OutOrStdout(), res.FinalURL, res.Method, res.Signals)
					return nil
				}

				src, err := a.sources.GetBySlug(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load source %s: %w", args[0], err)
				}
				method, err := a.auditor().Audit(cmd.Context(), src, force)
				if err != nil {
					return fmt.Errorf("audit %s: %w", src.Slug, err)
				}
				updated, err := a.sources.GetBySlug(cmd.Context(), src.Slug)
				if err != nil {
					return fmt.Errorf("reload source %s: %w", src.Slug, err)
				}
				renderClassification(cmd.OutOrStdout(), updated.URL, method, updated.ClassifierSignals)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-probe even when a method is cached or set manually")
	cmd.Flags().StringVar(&rawURL, "url", "", "classify this URL instead of a stored source")
	return cmd
}

func renderClassification(w io.Writer, url string, method domain.IntegrationMethod, signals domain.Signals) {
	fmt.Fprintf(w, "%s -> %s\n", url, method)
	if len(signals) == 0 {
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Signal", "Detail", "Decisive"})
	for _, s := range signals {
		t.AppendRow(table.Row{s.Name, truncate(s.Detail, 80), s.Decisive})
	}
	t.Render()
}
