package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
)

// CSVSink appends one row per Write. The file is reopened for every row so a
// crash leaves a valid prefix of complete rows.
type CSVSink struct {
	path string
}

// NewCSV truncates path and writes the header row.
func NewCSV(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing %s: %w", path, err)
	}
	return &CSVSink{path: path}, nil
}

func (s *CSVSink) Path() string { return s.path }

func (s *CSVSink) Write(_ context.Context, t Transaction) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Row()); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing row: %w", err)
	}
	return f.Close()
}

func (s *CSVSink) Close() error { return nil }
