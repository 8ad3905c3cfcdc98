// Package importer loads source definitions from YAML or XLSX files and upserts them.
package importer

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/domain"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// SourceRow is one source definition read from a file.
type SourceRow struct {
	Row      int            `yaml:"-"` // file row number, for error reporting
	Slug     string         `yaml:"slug"`
	Name     string         `yaml:"name"`
	URL      string         `yaml:"url"`
	Method   string         `yaml:"method"`
	Active   *bool          `yaml:"active"`
	Priority int            `yaml:"priority"`
	Config   map[string]any `yaml:"config"`
}

// ImportError is a validation failure for one row.
type ImportError struct {
	Row   int    `json:"row"`
	Slug  string `json:"slug,omitempty"`
	Error string `json:"error"`
}

// ValidateRow returns an error message, or "" when row is valid.
func ValidateRow(row SourceRow) string {
	if !slugPattern.MatchString(row.Slug) {
		return "slug must be lowercase letters, digits and single hyphens"
	}
	if strings.TrimSpace(row.URL) == "" {
		return "url is required"
	}
	u, err := url.Parse(row.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "url must be an absolute http:// or https:// URL"
	}
	if _, err = domain.ParseMethod(row.Method); err != nil {
		return err.Error()
	}
	if row.Priority < 0 {
		return "priority must be non-negative"
	}
	return ""
}

// ToSource converts a validated row.
func ToSource(row SourceRow) *domain.Source {
	method, _ := domain.ParseMethod(row.Method)
	name := strings.TrimSpace(row.Name)
	if name == "" {
		name = row.Slug
	}
	active := true
	if row.Active != nil {
		active = *row.Active
	}
	return &domain.Source{
		Slug:              row.Slug,
		Name:              name,
		URL:               strings.TrimSpace(row.URL),
		IntegrationMethod: method,
		IsActive:          active,
		Priority:          row.Priority,
		Config:            domain.JSONBMap(row.Config),
	}
}

// Upserter stores sources by slug.
type Upserter interface {
	Upsert(ctx context.Context, src *domain.Source) error
}

// Result summarises an import.
type Result struct {
	Imported int           `json:"imported"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// Import validates rows and upserts the valid ones. Invalid or duplicate rows are
// reported and skipped; a store failure aborts the import.
func Import(ctx context.Context, store Upserter, rows []SourceRow) (*Result, error) {
	res := &Result{}
	seen := make(map[string]int, len(rows))

	for _, row := range rows {
		if msg := ValidateRow(row); msg != "" {
			res.Errors = append(res.Errors, ImportError{Row: row.Row, Slug: row.Slug, Error: msg})
			continue
		}
		if first, dup := seen[row.Slug]; dup {
			res.Errors = append(res.Errors, ImportError{
				Row: row.Row, Slug: row.Slug, Error: fmt.Sprintf("duplicate slug, first defined on row %d", first),
			})
			continue
		}
		seen[row.Slug] = row.Row

		if err := store.Upsert(ctx, ToSource(row)); err != nil {
			return res, fmt.Errorf("upsert source %s: %w", row.Slug, err)
		}
		res.Imported++
	}
	return res, nil
}
