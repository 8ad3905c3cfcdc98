package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column indices for the spreadsheet (0-based).
const (
	colSlug     = 0 // Column A
	colName     = 1 // Column B
	colURL      = 2 // Column C
	colMethod   = 3 // Column D
	colActive   = 4 // Column E
	colPriority = 5 // Column F
	colConfig   = 6 // Column G

	headerRows = 1
)

// Headers are the expected header cells of the first sheet.
var Headers = []string{"slug", "name", "url", "method", "active", "priority", "config"}

// ParseExcel reads sources from the first sheet of an XLSX workbook. Cells that
// cannot be parsed are reported as row errors.
func ParseExcel(r io.Reader) ([]SourceRow, []ImportError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	rows := make([]SourceRow, 0, len(cells))
	var errs []ImportError
	for i, cols := range cells {
		if i < headerRows || blank(cols) {
			continue
		}
		rowNum := i + 1
		row, msg := parseCells(rowNum, cols)
		if msg != "" {
			errs = append(errs, ImportError{Row: rowNum, Slug: row.Slug, Error: msg})
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs, nil
}

func parseCells(rowNum int, cols []string) (SourceRow, string) {
	row := SourceRow{
		Row:    rowNum,
		Slug:   cell(cols, colSlug),
		Name:   cell(cols, colName),
		URL:    cell(cols, colURL),
		Method: cell(cols, colMethod),
	}

	if v := cell(cols, colActive); v != "" {
		active, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return row, "active must be true or false"
		}
		row.Active = &active
	}
	if v := cell(cols, colPriority); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return row, "priority must be an integer"
		}
		row.Priority = p
	}
	if v := cell(cols, colConfig); v != "" {
		if err := json.Unmarshal([]byte(v), &row.Config); err != nil {
			return row, "config must be a JSON object"
		}
	}
	return row, ""
}

func cell(cols []string, idx int) string {
	if idx >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[idx])
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
