package storage

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable marks a source connection that could not be
// established. The pipeline contains it at the period boundary.
var ErrSourceUnavailable = errors.New("source unavailable")

// SchemaError reports a failed DDL operation during warehouse bootstrap.
// Fatal for the whole run.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("schema: %v", e.Err)
	}
	return fmt.Sprintf("schema: table %s: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// SchemaMismatch reports a source table missing an expected column. Raised
// once at record construction, not per row.
type SchemaMismatch struct {
	Table  string
	Column string
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("schema mismatch: table %s: missing column %s", e.Table, e.Column)
}

// BulkInsertError reports a failed bulk-insert chunk. The failed chunk is
// rolled back; chunks committed before it stay persisted.
type BulkInsertError struct {
	Table string
	Chunk int
	Err   error
}

func (e *BulkInsertError) Error() string {
	return fmt.Sprintf("bulk insert: table %s chunk %d: %v", e.Table, e.Chunk, e.Err)
}

func (e *BulkInsertError) Unwrap() error { return e.Err }
