package warehouse

import (
	"context"
	"time"

	"flightdw/internal/storage"
)

// Bootstrapper prepares the target warehouse before a run.
type Bootstrapper struct {
	WH     storage.Warehouse
	Logger Logger
}

// EnsureSchema idempotently creates the star schema tables.
func (b *Bootstrapper) EnsureSchema(ctx context.Context) error {
	logf := logfOrDiscard(b.Logger)

	start := time.Now()
	if err := b.WH.EnsureSchema(ctx, WarehouseTables()); err != nil {
		return err
	}
	logf("stage=ddl ok duration=%s", durMS(start))
	return nil
}

// ResetTarget recreates the target database from scratch through an
// administrative connection. With drop=false it only ensures the database
// exists. Destructive when drop=true: all warehouse contents are lost.
func ResetTarget(ctx context.Context, admin storage.Warehouse, database string, drop bool, logger Logger) error {
	logf := logfOrDiscard(logger)

	if drop {
		start := time.Now()
		if err := admin.DropDatabase(ctx, database); err != nil {
			return err
		}
		logf("stage=drop_database database=%s duration=%s", database, durMS(start))
	}

	start := time.Now()
	if err := admin.EnsureDatabase(ctx, database); err != nil {
		return err
	}
	logf("stage=ensure_database database=%s duration=%s", database, durMS(start))
	return nil
}
