package tabular

import (
	"context"
	"sync"

	"github.com/koustreak/TabRi/internal/errs"
)

// MemStore is an in-memory Store. It is the default backend for tests and
// short-lived scripts; nothing is persisted.
// It is safe for concurrent use by multiple goroutines.
type MemStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

type memTable struct {
	header []string
	rows   [][]string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[string]*memTable)}
}

// EnsureTable creates table with the given header if absent. Idempotent.
func (s *MemStore) EnsureTable(_ context.Context, table string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table]; ok {
		return nil
	}
	h := make([]string, len(header))
	copy(h, header)
	s.tables[table] = &memTable{header: h}
	return nil
}

// ReadAll returns a copy of every data row of table, in order.
func (s *MemStore) ReadAll(_ context.Context, table string) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(t.rows))
	for i, row := range t.rows {
		r := make([]string, len(row))
		copy(r, row)
		out[i] = r
	}
	return out, nil
}

// Append adds row after the last data row of table.
func (s *MemStore) Append(_ context.Context, table string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	r := make([]string, len(row))
	copy(r, row)
	t.rows = append(t.rows, r)
	return nil
}

// Overwrite replaces the data row at index in place.
func (s *MemStore) Overwrite(_ context.Context, table string, index int, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(t.rows) {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: row index %d out of range (%d rows)", table, index, len(t.rows))
	}
	r := make([]string, len(row))
	copy(r, row)
	t.rows[index] = r
	return nil
}

// Delete removes the data row at index; later rows shift up.
func (s *MemStore) Delete(_ context.Context, table string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(t.rows) {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: row index %d out of range (%d rows)", table, index, len(t.rows))
	}
	t.rows = append(t.rows[:index], t.rows[index+1:]...)
	return nil
}

// Truncate removes all data rows of table, preserving the header.
func (s *MemStore) Truncate(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}
	t.rows = nil
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error {
	return nil
}

func (s *MemStore) table(name string) (*memTable, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q does not exist", name)
	}
	return t, nil
}
