// Package tabular defines the storage contract TabRi builds on: a named
// table holding an ordered list of string rows under a fixed header.
//
// The contract is deliberately primitive — bulk read, positional overwrite,
// positional delete, append — so that anything row-shaped (an in-memory
// table, a CSV file, a SQL table, a spreadsheet) can back it. All typing,
// validation, and referential integrity live above this package.
//
// Drivers:
//
//	tabular.NewMemStore()        — in-memory, also the test backend
//	csvdir.New(dir)              — one CSV file per table
//	postgres.New(ctx, cfg)       — pgx-pool-backed rows in Postgres
//	mysql.New(ctx, cfg)          — database/sql-backed rows in MySQL
package tabular

import "context"

// Record is a flat field-name → scalar-value map, the unit of data exchanged
// above the store layer. Values are string, float64, or bool after decoding.
type Record = map[string]any

// Store is the single interface all tabular storage drivers implement.
// Row indexes are zero-based positions over data rows (the header is never
// counted). Drivers return errs.Error values: ErrKindNotFound for a missing
// table, ErrKindInvalidInput for an out-of-range index, ErrKindStorage for
// I/O failures.
type Store interface {
	// EnsureTable creates the physical table with the given header columns
	// if it does not exist yet. Idempotent; called once at initialization.
	EnsureTable(ctx context.Context, table string, header []string) error

	// ReadAll returns every data row of table in order, header excluded.
	// An empty table yields an empty slice, never an error.
	ReadAll(ctx context.Context, table string) ([][]string, error)

	// Append adds row after the last data row of table.
	Append(ctx context.Context, table string, row []string) error

	// Overwrite replaces the data row at index in place.
	Overwrite(ctx context.Context, table string, index int, row []string) error

	// Delete removes the data row at index; later rows shift up by one.
	Delete(ctx context.Context, table string, index int) error

	// Truncate removes all data rows of table, preserving the header.
	Truncate(ctx context.Context, table string) error

	// Close releases any resources held by the driver.
	Close() error
}
