// Package mssql implements the storage interfaces for Microsoft SQL Server,
// the warehouse's original target platform.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"flightdw/internal/storage"
)

func init() {
	storage.RegisterWarehouse("mssql", NewWarehouse)
	storage.RegisterSource("mssql", NewSource)
}

// Warehouse implements storage.Warehouse over a single SQL Server database.
//
// The implicit transaction opens lazily on the first Exec/Query/BulkInsert
// and is finished by Commit/Rollback, mirroring an autocommit-off
// connection. DDL and database-level operations run on the raw handle.
type Warehouse struct {
	db *sql.DB
	tx *sql.Tx
}

// NewWarehouse opens a SQL Server warehouse and validates connectivity.
func NewWarehouse(ctx context.Context, cfg storage.Config) (storage.Warehouse, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: connect: %w", err)
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
		return nil, fmt.Errorf("mssql: begin tx: %w", err)
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
		return fmt.Errorf("mssql: exec: %w", err)
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
		return nil, fmt.Errorf("mssql: query: %w", err)
	}
	out, _, err := storage.ScanRows(rows)
	return out, err
}

// BulkInsert inserts all rows inside the current transaction. SQL Server has
// a hard limit of 2100 parameters per statement, so the rows are split into
// statements of at most 2000/len(columns) rows each.
func (w *Warehouse) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if table == "" || len(columns) == 0 {
		return 0, fmt.Errorf("mssql: BulkInsert: table and columns are required")
	}

	tx, err := w.begin(ctx)
	if err != nil {
		return 0, err
	}

	maxRows := 2000 / len(columns)
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
			return total, fmt.Errorf("mssql: insert %s: %w", table, err)
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
		return fmt.Errorf("mssql: commit: %w", err)
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
		return fmt.Errorf("mssql: rollback: %w", err)
	}
	return nil
}

// EnsureSchema creates each table if absent, using an OBJECT_ID guard so the
// whole call is idempotent and safe on every run.
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

// EnsureDatabase creates the named database if absent. Must be called on an
// administrative connection (master); CREATE DATABASE cannot run inside a
// user transaction.
func (w *Warehouse) EnsureDatabase(ctx context.Context, name string) error {
	q := fmt.Sprintf(
		"IF DB_ID(N'%s') IS NULL BEGIN CREATE DATABASE %s END",
		escapeString(name), mssqlIdent(name),
	)
	if _, err := w.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: create database %s: %w", name, err)
	}
	return nil
}

// DropDatabase forcefully drops the named database, kicking out open
// sessions first. Must be called on an administrative connection.
func (w *Warehouse) DropDatabase(ctx context.Context, name string) error {
	q := fmt.Sprintf(
		"IF DB_ID(N'%[1]s') IS NOT NULL BEGIN ALTER DATABASE %[2]s SET SINGLE_USER WITH ROLLBACK IMMEDIATE; DROP DATABASE %[2]s; END",
		escapeString(name), mssqlIdent(name),
	)
	if _, err := w.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("mssql: drop database %s: %w", name, err)
	}
	return nil
}

// ---- source ----

// Source implements storage.Source over one yearly SQL Server database.
type Source struct {
	db *sql.DB
}

// NewSource opens a source database. Connectivity failures are wrapped in
// storage.ErrSourceUnavailable so the pipeline can contain them per period.
func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSourceUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrSourceUnavailable, err)
	}
	return &Source{db: db}, nil
}

func (s *Source) Query(ctx context.Context, table string, limit int) ([][]any, []string, error) {
	q := "SELECT * FROM " + mssqlTableIdent(table)
	if limit > 0 {
		q = fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, mssqlTableIdent(table))
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: query %s: %w", table, err)
	}
	return storage.ScanRows(rows)
}

func (s *Source) Close() { _ = s.db.Close() }

// ---- SQL building ----

// buildBulkInsertSQL builds a single INSERT ... VALUES statement using @pN
// ordinal placeholders. Callers are responsible for keeping the parameter
// count under the server limit.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args
}

// buildCreateSQL builds an idempotent CREATE TABLE statement for a spec.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var parts []string

	if t.PrimaryKey != nil {
		pk := *t.PrimaryKey
		if pk.Identity {
			parts = append(parts, fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)))
		} else {
			parts = append(parts, fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), typeFor(pk.Type)))
		}
	}

	for _, c := range t.Columns {
		def, err := columnDef(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, def)
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		escapeString(t.Name), mssqlTableIdent(t.Name), strings.Join(parts, ", "),
	), nil
}

func columnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("mssql: column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("mssql: column %s type is empty", c.Name)
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
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
	return b.String(), nil
}

// typeFor maps logical column types to SQL Server types. Unknown types pass
// through verbatim (e.g. "VARCHAR(50)").
func typeFor(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "int":
		return "INT"
	case "bigint":
		return "BIGINT"
	case "bool":
		return "BIT"
	case "time":
		return "TIME"
	case "text":
		return "VARCHAR(MAX)"
	default:
		return logical
	}
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent bracket-quotes schema-qualified names ("dbo.FactFlight").
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
