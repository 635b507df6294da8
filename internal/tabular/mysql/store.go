// Package mysql provides a tabular.Store that keeps each logical table in a
// MySQL table: an auto-increment "pos" column for row order plus one TEXT
// column per schema field. It mirrors the postgres driver over database/sql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver

	"github.com/koustreak/TabRi/internal/errs"
	"github.com/koustreak/TabRi/internal/tabular"
)

const posColumn = "pos"

// Store is a MySQL implementation of tabular.Store backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	columns map[string][]string // per-table field columns, pos excluded
}

// New opens a MySQL connection pool using the provided Config and returns a
// Store. It pings the server to validate the connection before returning.
func New(ctx context.Context, cfg *tabular.Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	s := &Store{db: db, columns: make(map[string][]string)}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, mapError(err, "ping failed")
	}

	return s, nil
}

// --- tabular.Store implementation ---

func (s *Store) EnsureTable(ctx context.Context, table string, header []string) error {
	cols := make([]string, 0, len(header)+1)
	cols = append(cols, quoteIdent(posColumn)+" BIGINT AUTO_INCREMENT PRIMARY KEY")
	for _, name := range header {
		cols = append(cols, quoteIdent(name)+" TEXT NOT NULL")
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(table), strings.Join(cols, ", "))

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return mapError(err, "failed to ensure table "+table)
	}

	s.mu.Lock()
	s.columns[table] = append([]string(nil), header...)
	s.mu.Unlock()
	return nil
}

func (s *Store) ReadAll(ctx context.Context, table string) ([][]string, error) {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quotedList(cols), quoteIdent(table), quoteIdent(posColumn))

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to read table "+table)
	}
	defer rows.Close()

	result := make([][]string, 0)
	for rows.Next() {
		row := make([]string, len(cols))
		dest := make([]any, len(cols))
		for i := range row {
			dest[i] = &row[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, mapError(err, "failed to scan row")
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating rows")
	}
	return result, nil
}

func (s *Store) Append(ctx context.Context, table string, row []string) error {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	if len(row) != len(cols) {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: row has %d cells, table has %d columns", table, len(row), len(cols))
	}

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i := range cols {
		placeholders[i] = "?"
		args[i] = row[i]
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), quotedList(cols), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return mapError(err, "failed to append row to "+table)
	}
	return nil
}

func (s *Store) Overwrite(ctx context.Context, table string, index int, row []string) error {
	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	if len(row) != len(cols) {
		return errs.Newf(errs.ErrKindInvalidInput,
			"table %q: row has %d cells, table has %d columns", table, len(row), len(cols))
	}

	pos, err := s.posAt(ctx, table, index)
	if err != nil {
		return err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = quoteIdent(c) + " = ?"
		args = append(args, row[i])
	}
	args = append(args, pos)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quoteIdent(table), strings.Join(sets, ", "), quoteIdent(posColumn))

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return mapError(err, "failed to overwrite row in "+table)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, index int) error {
	pos, err := s.posAt(ctx, table, index)
	if err != nil {
		return err
	}

	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		quoteIdent(table), quoteIdent(posColumn))

	if _, err := s.db.ExecContext(ctx, q, pos); err != nil {
		return mapError(err, "failed to delete row from "+table)
	}
	return nil
}

func (s *Store) Truncate(ctx context.Context, table string) error {
	q := "DELETE FROM " + quoteIdent(table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return mapError(err, "failed to truncate "+table)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- internals ---

func (s *Store) posAt(ctx context.Context, table string, index int) (int64, error) {
	if index < 0 {
		return 0, errs.Newf(errs.ErrKindInvalidInput,
			"table %q: row index %d out of range", table, index)
	}

	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT 1 OFFSET ?",
		quoteIdent(posColumn), quoteIdent(table), quoteIdent(posColumn))

	var pos int64
	if err := s.db.QueryRowContext(ctx, q, index).Scan(&pos); err != nil {
		if err == sql.ErrNoRows {
			return 0, errs.Newf(errs.ErrKindInvalidInput,
				"table %q: row index %d out of range", table, index)
		}
		return 0, mapError(err, "failed to resolve row position")
	}
	return pos, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	s.mu.Lock()
	cols, ok := s.columns[table]
	s.mu.Unlock()
	if ok {
		return cols, nil
	}

	const q = `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name   = ?
		  AND column_name <> ?
		ORDER BY ordinal_position`

	rows, err := s.db.QueryContext(ctx, q, table, posColumn)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan column name")
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	if len(cols) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %q does not exist", table)
	}

	s.mu.Lock()
	s.columns[table] = cols
	s.mu.Unlock()
	return cols, nil
}

// quoteIdent wraps a MySQL identifier in backticks.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quotedList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
