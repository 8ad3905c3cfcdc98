package cmd

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/importer"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/orchestrator"
)

const tableTimeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderSources(w io.Writer, sources []*domain.Source) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Slug", "Name", "Method", "Active", "Priority", "Audited", "URL"})
	for _, src := range sources {
		method := string(src.IntegrationMethod)
		if src.MethodOverridden {
			method += " (manual)"
		}
		audited := "-"
		if src.AuditedAt != nil {
			audited = src.AuditedAt.Local().Format(tableTimeLayout)
		}
		t.AppendRow(table.Row{src.Slug, src.Name, method, src.IsActive, src.EffectivePriority(), audited, src.URL})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(sources)})
	t.Render()
}

func renderRuns(w io.Writer, runs []*domain.CrawlRun, slugs map[string]string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Started", "Source", "Method", "Status", "Found", "New", "Updated", "Skipped", "Duration", "Error"})
	for _, run := range runs {
		slug := slugs[run.SourceID]
		if slug == "" {
			slug = run.SourceID
		}
		errMsg := ""
		if run.ErrorMessage != nil {
			errMsg = truncate(*run.ErrorMessage, 60)
		}
		t.AppendRow(table.Row{
			run.StartedAt.Local().Format(tableTimeLayout), slug, run.Method, run.Status,
			run.EventsFound, run.EventsNew, run.EventsUpdated, run.EventsSkipped,
			run.Duration().Round(time.Millisecond), errMsg,
		})
	}
	t.Render()
}

func renderSummary(w io.Writer, s *orchestrator.Summary) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Sources", "Succeeded", "Failed", "Timed out", "Skipped", "Found", "New", "Updated"})
	t.AppendRow(table.Row{s.Sources, s.Succeeded, s.Failed, s.TimedOut, s.Skipped, s.Found, s.New, s.Updated})
	t.Render()
}

func renderImportErrors(w io.Writer, errs []importer.ImportError) {
	if len(errs) == 0 {
		return
	}
	t := newTable(w)
	t.SetTitle("Rejected rows")
	t.AppendHeader(table.Row{"Row", "Slug", "Error"})
	for _, e := range errs {
		t.AppendRow(table.Row{e.Row, e.Slug, e.Error})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
