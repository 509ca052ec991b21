// Package sqlite implements the storage interfaces for SQLite via
// modernc.org/sqlite (cgo-free). Used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"flightdw/internal/storage"
)

func init() {
	storage.RegisterWarehouse("sqlite", NewWarehouse)
	storage.RegisterSource("sqlite", NewSource)
}

// Warehouse implements storage.Warehouse over one SQLite database file.
//
// The pipeline is a single writer, so the pool is capped at one connection;
// that also keeps the implicit-transaction model honest.
type Warehouse struct {
	db *sql.DB
	tx *sql.Tx
}

func NewWarehouse(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	return &Warehouse{db: db}, nil
}

func (w *Warehouse) Close() {
	if w.tx != nil {
		_ = w.tx.Rollback()
		w.tx = nil
	}
	_ = w.db.Close()
}

func (w *Warehouse) begin(ctx context.Context) (*sql.Tx, error) {
	if w.tx != nil {
		return w.tx, nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	w.tx = tx
	return tx, nil
}

func (w *Warehouse) Exec(ctx context.Context, query string, args ...any) error {
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

func (w *Warehouse) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	tx, err := w.begin(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	out, _, err := storage.ScanRows(rows)
	return out, err
}

// BulkInsert inserts all rows inside the current transaction, splitting the
// statement to stay under the default variable limit.
func (w *Warehouse) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: BulkInsert: table and columns are required")
	}

	tx, err := w.begin(ctx)
	if err != nil {
		return 0, err
	}

	maxRows := 800 / len(columns)
	if maxRows < 1 {
		maxRows = 1
	}

	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := start + maxRows
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildBulkInsertSQL(table, columns, rows[start:end])

		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (w *Warehouse) Commit(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (w *Warehouse) Rollback(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Rollback()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("sqlite: rollback: %w", err)
	}
	return nil
}

func (w *Warehouse) EnsureSchema(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return &storage.SchemaError{Table: t.Name, Err: err}
		}
		if _, err := w.db.ExecContext(ctx, ddl); err != nil {
			return &storage.SchemaError{Table: t.Name, Err: err}
		}
	}
	return nil
}

// EnsureDatabase is a no-op: opening a SQLite DSN creates the file.
func (w *Warehouse) EnsureDatabase(ctx context.Context, name string) error { return nil }

// DropDatabase removes the database file. Removing a file that does not
// exist is treated as success to keep the reset idempotent.
func (w *Warehouse) DropDatabase(ctx context.Context, name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sqlite: drop database %s: %w", name, err)
	}
	return nil
}

// ---- source ----

type Source struct {
	db *sql.DB
}

func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	// An absent file would silently open as an empty database; treat it as
	// an unavailable source instead.
	if path := dsnPath(cfg.DSN); path != "" && path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrSourceUnavailable, err)
		}
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSourceUnavailable, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrSourceUnavailable, err)
	}
	return &Source{db: db}, nil
}

func (s *Source) Query(ctx context.Context, table string, limit int) ([][]any, []string, error) {
	q := "SELECT * FROM " + table
	if limit > 0 {
		q = fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit)
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: query %s: %w", table, err)
	}
	return storage.ScanRows(rows)
}

func (s *Source) Close() { _ = s.db.Close() }

// dsnPath strips query parameters and the optional file: scheme from a DSN.
func dsnPath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// ---- SQL building ----

func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	rowPH := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(rowPH)
		args = append(args, row[:len(columns)]...)
	}
	return b.String(), args
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("sqlite: table name is empty")
	}

	var parts []string

	if t.PrimaryKey != nil {
		pk := *t.PrimaryKey
		if pk.Identity {
			// INTEGER PRIMARY KEY aliases rowid, giving auto-assigned keys.
			parts = append(parts, fmt.Sprintf("%s INTEGER PRIMARY KEY AUTOINCREMENT", pk.Name))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", pk.Name, typeFor(pk.Type)))
		}
	}

	for _, c := range t.Columns {
		var b strings.Builder
		b.WriteString(c.Name)
		b.WriteString(" ")
		b.WriteString(typeFor(c.Type))
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if c.Unique {
			b.WriteString(" UNIQUE")
		}
		if strings.TrimSpace(c.References) != "" {
			b.WriteString(" REFERENCES ")
			b.WriteString(c.References)
		}
		parts = append(parts, b.String())
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		t.Name, strings.Join(parts, ", "),
	), nil
}

// typeFor maps logical column types to SQLite storage classes. SQLite has no
// TIME type; canonical time strings are stored as TEXT.
func typeFor(logical string) string {
	l := strings.ToLower(strings.TrimSpace(logical))
	switch {
	case l == "int" || l == "bigint" || l == "bool":
		return "INTEGER"
	case l == "time" || l == "text" || strings.HasPrefix(l, "varchar"):
		return "TEXT"
	default:
		return logical
	}
}
