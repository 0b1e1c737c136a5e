package storage

import (
	"encoding/csv"
	"fmt"
	"os"

	"sold-crawler/pkg/models"
)

// CSVSink appends normalized rows to a CSV file with the fixed column
// schema. It is forward-only: rows are never rewritten.
type CSVSink struct {
	f    *os.File
	w    *csv.Writer
	rows int
}

// OpenCSV creates (or truncates) path and writes the header row.
func OpenCSV(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	s := &CSVSink{f: f, w: csv.NewWriter(f)}
	if err := s.w.Write(models.Columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := s.flush(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Save writes one region's rows and flushes them to disk, so an interrupted
// run leaves a readable file.
func (s *CSVSink) Save(batch []models.Row) error {
	if len(batch) == 0 {
		return nil
	}
	for _, row := range batch {
		if err := s.w.Write(row.Values()); err != nil {
			return fmt.Errorf("write row %d: %w", row.PropertyID, err)
		}
		s.rows++
	}
	return s.flush()
}

// Rows is the number of data rows written so far.
func (s *CSVSink) Rows() int {
	return s.rows
}

func (s *CSVSink) flush() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.f.Sync()
}

// Close flushes any buffered rows and closes the file.
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
