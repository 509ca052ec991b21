// Package postgres implements the storage interfaces over pgx.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flightdw/internal/storage"
)

func init() {
	storage.RegisterWarehouse("postgres", NewWarehouse)
	storage.RegisterSource("postgres", NewSource)
}

// Warehouse implements storage.Warehouse over a pgx pool.
//
// Identifiers are written unquoted in DDL so Postgres folds them to lower
// case; BulkInsert lowers its identifiers to match.
type Warehouse struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewWarehouse(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Warehouse{pool: pool}, nil
}

func (w *Warehouse) Close() {
	if w.tx != nil {
		_ = w.tx.Rollback(context.Background())
		w.tx = nil
	}
	w.pool.Close()
}

func (w *Warehouse) begin(ctx context.Context) (pgx.Tx, error) {
	if w.tx != nil {
		return w.tx, nil
	}
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	w.tx = tx
	return tx, nil
}

func (w *Warehouse) Exec(ctx context.Context, query string, args ...any) error {
	tx, err := w.begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: exec: %w", err)
	}
	return nil
}

func (w *Warehouse) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	tx, err := w.begin(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	return collectRows(rows)
}

// BulkInsert uses the COPY protocol inside the current transaction.
func (w *Warehouse) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("postgres: BulkInsert: table and columns are required")
	}

	tx, err := w.begin(ctx)
	if err != nil {
		return 0, err
	}

	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToLower(c)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{strings.ToLower(table)}, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy %s: %w", table, err)
	}
	return n, nil
}

func (w *Warehouse) Commit(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Commit(ctx)
	w.tx = nil
	if err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (w *Warehouse) Rollback(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Rollback(ctx)
	w.tx = nil
	if err != nil {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

func (w *Warehouse) EnsureSchema(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return &storage.SchemaError{Table: t.Name, Err: err}
		}
		if _, err := w.pool.Exec(ctx, ddl); err != nil {
			return &storage.SchemaError{Table: t.Name, Err: err}
		}
	}
	return nil
}

// EnsureDatabase creates the named database if absent. Must be called on an
// administrative connection; CREATE DATABASE cannot run in a transaction.
func (w *Warehouse) EnsureDatabase(ctx context.Context, name string) error {
	var exists bool
	err := w.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", strings.ToLower(name)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check database %s: %w", name, err)
	}
	if exists {
		return nil
	}
	if _, err := w.pool.Exec(ctx, "CREATE DATABASE "+strings.ToLower(name)); err != nil {
		return fmt.Errorf("postgres: create database %s: %w", name, err)
	}
	return nil
}

// DropDatabase drops the named database, forcing other sessions off.
func (w *Warehouse) DropDatabase(ctx context.Context, name string) error {
	q := fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", strings.ToLower(name))
	if _, err := w.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("postgres: drop database %s: %w", name, err)
	}
	return nil
}

// ---- source ----

type Source struct {
	pool *pgxpool.Pool
}

func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSourceUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrSourceUnavailable, err)
	}
	return &Source{pool: pool}, nil
}

func (s *Source) Query(ctx context.Context, table string, limit int) ([][]any, []string, error) {
	q := "SELECT * FROM " + strings.ToLower(table)
	if limit > 0 {
		q = fmt.Sprintf("SELECT * FROM %s LIMIT %d", strings.ToLower(table), limit)
	}
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: query %s: %w", table, err)
	}

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		// Source record mapping expects the original upper-case names.
		columns[i] = strings.ToUpper(f.Name)
	}

	out, err := collectRows(rows)
	if err != nil {
		return nil, nil, err
	}
	return out, columns, nil
}

func (s *Source) Close() { s.pool.Close() }

func collectRows(rows pgx.Rows) ([][]any, error) {
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- SQL building ----

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("postgres: table name is empty")
	}

	var parts []string

	if t.PrimaryKey != nil {
		pk := *t.PrimaryKey
		if pk.Identity {
			parts = append(parts, fmt.Sprintf("%s INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY", strings.ToLower(pk.Name)))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", strings.ToLower(pk.Name), typeFor(pk.Type)))
		}
	}

	for _, c := range t.Columns {
		var b strings.Builder
		b.WriteString(strings.ToLower(c.Name))
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
			b.WriteString(strings.ToLower(c.References))
		}
		parts = append(parts, b.String())
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		strings.ToLower(t.Name), strings.Join(parts, ", "),
	), nil
}

func typeFor(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "int":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "bool":
		return "BOOLEAN"
	case "time":
		return "TIME"
	case "text":
		return "TEXT"
	default:
		return logical
	}
}
