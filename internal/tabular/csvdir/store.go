// Package csvdir provides a tabular.Store backed by a directory of CSV
// files, one file per table, header row first. It is the no-server
// persistent backend: human-readable, diffable, and trivially importable
// into a spreadsheet.
//
// Every mutation rewrites the whole file through an atomic rename, so a
// crash mid-write never leaves a half-written table behind. The store is
// built for single-process ownership; two processes mutating the same
// directory race at the file level.
package csvdir

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/koustreak/TabRi/internal/errs"
)

// Store is a CSV-directory implementation of tabular.Store.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the directory if needed and returns a Store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errs.Wrap(errs.ErrKindStorage, "failed to create table directory", err)
	}
	return &Store{dir: dir}, nil
}

// --- tabular.Store implementation ---

// EnsureTable writes a header-only CSV file for table if none exists.
func (s *Store) EnsureTable(_ context.Context, table string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(table)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errs.Wrap(errs.ErrKindStorage, "failed to stat table file", err)
	}
	return s.writeFile(table, header, nil)
}

// ReadAll returns every data row of table in file order, header excluded.
func (s *Store) ReadAll(_ context.Context, table string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, rows, err := s.readFile(table)
	return rows, err
}

// Append adds row after the last data row of table.
func (s *Store) Append(_ context.Context, table string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, rows, err := s.readFile(table)
	if err != nil {
		return err
	}
	return s.writeFile(table, header, append(rows, row))
}

// Overwrite replaces the data row at index in place.
func (s *Store) Overwrite(_ context.Context, table string, index int, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, rows, err := s.readFile(table)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: row index %d out of range (%d rows)", table, index, len(rows))
	}
	rows[index] = row
	return s.writeFile(table, header, rows)
}

// Delete removes the data row at index; later rows shift up.
func (s *Store) Delete(_ context.Context, table string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, rows, err := s.readFile(table)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: row index %d out of range (%d rows)", table, index, len(rows))
	}
	rows = append(rows[:index], rows[index+1:]...)
	return s.writeFile(table, header, rows)
}

// Truncate rewrites table with only its header row.
func (s *Store) Truncate(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, _, err := s.readFile(table)
	if err != nil {
		return err
	}
	return s.writeFile(table, header, nil)
}

// Close is a no-op; files are never held open between calls.
func (s *Store) Close() error {
	return nil
}

// --- internals ---

func (s *Store) path(table string) string {
	return filepath.Join(s.dir, table+".csv")
}

// readFile loads the table file and splits it into header and data rows.
func (s *Store) readFile(table string) ([]string, [][]string, error) {
	f, err := os.Open(s.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errs.Newf(errs.ErrKindNotFound, "table %q does not exist", table)
		}
		return nil, nil, errs.Wrap(errs.ErrKindStorage, "failed to open table file", err)
	}
	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrKindStorage, "failed to parse table file", err)
	}
	if len(all) == 0 {
		return nil, nil, errs.Newf(errs.ErrKindStorage, "table %q has no header row", table)
	}
	return all[0], all[1:], nil
}

// writeFile renders header+rows as CSV and atomically replaces the file.
func (s *Store) writeFile(table string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return errs.Wrap(errs.ErrKindStorage, "failed to encode header row", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return errs.Wrap(errs.ErrKindStorage, "failed to encode data row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errs.Wrap(errs.ErrKindStorage, "failed to flush table file", err)
	}

	if err := atomic.WriteFile(s.path(table), &buf); err != nil {
		return errs.Wrap(errs.ErrKindStorage, "failed to replace table file", err)
	}
	return nil
}
