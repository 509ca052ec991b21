// Package storage defines the narrow collaborator interfaces the warehouse
// pipeline depends on, plus a registry so backend packages can plug in
// without the core importing them.
package storage

import (
	"context"
	"fmt"
	"sync"
)

// Config is the minimal configuration needed to open a backend.
//
// Kind must match a registered backend kind ("mssql", "sqlite", "postgres").
// DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Source reads raw rows from one source database (one yearly dataset).
//
// Sources are short-lived: the pipeline opens one per period and closes it
// when that period finishes, successfully or not.
type Source interface {
	// Query returns all rows and column names from a source table.
	// limit <= 0 means no row limit.
	Query(ctx context.Context, table string, limit int) (rows [][]any, columns []string, err error)

	// Close releases the source connection. Safe to call once.
	Close()
}

// Warehouse is the single mutation point for the target star schema.
//
// Transaction model mirrors a single autocommit-off connection: Exec, Query
// and BulkInsert run inside an implicit transaction that is opened lazily and
// finished by Commit or Rollback. The pipeline is the only writer; no
// concurrent mutation is protected against.
type Warehouse interface {
	// EnsureSchema idempotently creates the given tables and constraints.
	// Runs outside the implicit transaction (DDL autocommits).
	EnsureSchema(ctx context.Context, tables []TableSpec) error

	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) ([][]any, error)

	// BulkInsert inserts rows into table in one logical operation. Backends
	// may split the statement internally to respect parameter limits, but
	// all rows land in the current transaction.
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Commit finishes the current implicit transaction. No-op when none is open.
	Commit(ctx context.Context) error
	// Rollback discards the current implicit transaction. No-op when none is open.
	Rollback(ctx context.Context) error

	// EnsureDatabase creates the named database if absent. Only meaningful on
	// an administrative connection; file-backed backends treat it as a no-op.
	EnsureDatabase(ctx context.Context, name string) error
	// DropDatabase force-disconnects users and drops the named database.
	DropDatabase(ctx context.Context, name string) error

	// Close releases backend resources. Call once.
	Close()
}

// ---- backend factories (backends register from init()) ----

type (
	sourceFactory    func(ctx context.Context, cfg Config) (Source, error)
	warehouseFactory func(ctx context.Context, cfg Config) (Warehouse, error)
)

var (
	mu                 sync.RWMutex
	sourceFactories    = map[string]sourceFactory{}
	warehouseFactories = map[string]warehouseFactory{}
)

// RegisterSource registers a source backend under a kind.
//
// Panics on empty kind, nil factory, or duplicate registration; failing fast
// here avoids ambiguous backend selection.
func RegisterSource(kind string, f sourceFactory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: RegisterSource called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterSource called with nil factory")
	}
	if _, exists := sourceFactories[kind]; exists {
		panic(fmt.Sprintf("storage: source factory already registered for kind=%q", kind))
	}
	sourceFactories[kind] = f
}

// RegisterWarehouse registers a warehouse backend under a kind.
// Same panic rules as RegisterSource.
func RegisterWarehouse(kind string, f warehouseFactory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: RegisterWarehouse called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterWarehouse called with nil factory")
	}
	if _, exists := warehouseFactories[kind]; exists {
		panic(fmt.Sprintf("storage: warehouse factory already registered for kind=%q", kind))
	}
	warehouseFactories[kind] = f
}

// NewSource opens a source using the registered backend factory.
//
// Connectivity failures are reported wrapped in ErrSourceUnavailable so the
// pipeline can treat them as a per-period failure.
func NewSource(ctx context.Context, cfg Config) (Source, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing source Kind")
	}

	mu.RLock()
	f := sourceFactories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// NewWarehouse opens a warehouse using the registered backend factory.
func NewWarehouse(ctx context.Context, cfg Config) (Warehouse, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing warehouse Kind")
	}

	mu.RLock()
	f := warehouseFactories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported warehouse storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
