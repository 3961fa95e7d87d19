// Package history reads, enriches, and combines listening history CSV files.
//
// A history file is a plain CSV with a header row. Enrichment widens each
// row with audio feature columns while preserving the original columns and
// row order, so enriched files stay valid inputs for downstream analysis.
package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// TrackURIColumn is the history column holding the Spotify track reference.
const TrackURIColumn = "spotify_track_uri"

// Table is an in-memory CSV file with a header row.
type Table struct {
	Header []string
	Rows   [][]string
}

// Load reads a CSV file into a Table. Every row is normalized to the header
// width: short rows are padded with empty cells (exports frequently truncate
// trailing blanks) and long rows lose their excess cells, so enrichment
// columns always line up with the widened header.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: file is empty", filepath.Base(path))
	}

	header := records[0]
	rows := records[1:]
	for i, row := range rows {
		if len(row) > len(header) {
			row = row[:len(header)]
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		rows[i] = row
	}

	return &Table{Header: header, Rows: rows}, nil
}

// Save writes the table to path, creating parent directories as needed.
func (t *Table) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// ColumnIndex returns the position of the named header column.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, col := range t.Header {
		if col == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found", name)
}

// Column returns the values of the named column, one per row.
func (t *Table) Column(name string) ([]string, error) {
	idx, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}

	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// TrackURIs returns the track reference column.
func (t *Table) TrackURIs() ([]string, error) {
	return t.Column(TrackURIColumn)
}
