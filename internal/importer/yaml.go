package importer

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type sourceFile struct {
	Sources []yaml.Node `yaml:"sources"`
}

// ParseYAML reads a document of the form `sources: [...]`. Rows are numbered by
// their line in the file.
func ParseYAML(r io.Reader) ([]SourceRow, error) {
	var file sourceFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return []SourceRow{}, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	rows := make([]SourceRow, 0, len(file.Sources))
	for i := range file.Sources {
		node := &file.Sources[i]
		var row SourceRow
		if err := node.Decode(&row); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		row.Row = node.Line
		rows = append(rows, row)
	}
	return rows, nil
}
