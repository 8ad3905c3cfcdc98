package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/importer"
)

func newSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage crawl sources",
	}
	cmd.AddCommand(newSourcesListCommand(), newSourcesImportCommand(), newSourcesSetMethodCommand())
	return cmd
}

func newSourcesListCommand() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sources with their integration method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				sources, err := a.sources.List(cmd.Context(), activeOnly)
				if err != nil {
					return fmt.Errorf("list sources: %w", err)
				}
				if len(sources) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sources configured")
					return nil
				}
				renderSources(cmd.OutOrStdout(), sources)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only list active sources")
	return cmd
}

func newSourcesImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update sources from a YAML or XLSX file",
		Long: `Import sources by slug. Existing classifications are kept unless the row names a
method. Invalid rows are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				res, err := importFile(cmd.Context(), args[0], a.sources)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sources\n", res.Imported)
				renderImportErrors(cmd.OutOrStdout(), res.Errors)
				return nil
			})
		},
	}
}

func newSourcesSetMethodCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-method <slug> <method>",
		Short: "Override a source's integration method",
		Long:  `Pin a method by hand. Audits keep it until run with --force.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := domain.ParseMethod(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), appOptions{}, func(a *app) error {
				src, err := a.sources.GetBySlug(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load source %s: %w", args[0], err)
				}
				if err = a.sources.SetMethod(cmd.Context(), src.ID, method, true); err != nil {
					return fmt.Errorf("set method: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (manual)\n", src.Slug, method)
				return nil
			})
		},
	}
}

// importFile parses path by extension and upserts its valid rows.
func importFile(ctx context.Context, path string, dst importer.Upserter) (*importer.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var (
		rows      []importer.SourceRow
		parseErrs []importer.ImportError
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		rows, err = importer.ParseYAML(f)
	case ".xlsx":
		rows, parseErrs, err = importer.ParseExcel(f)
	default:
		return nil, fmt.Errorf("unsupported source file %s: want .yaml, .yml or .xlsx", path)
	}
	if err != nil {
		return nil, err
	}

	res, err := importer.Import(ctx, dst, rows)
	if err != nil {
		return nil, err
	}
	res.Errors = append(parseErrs, res.Errors...)
	return res, nil
}
