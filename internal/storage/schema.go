// TableSpec lives here so backends and the warehouse core can share it
// without circular imports.
package storage

// TableSpec describes one target table for EnsureSchema. Column types are
// logical ("int", "bool", "time", "varchar(n)"); each backend maps them to
// its own DDL types.
type TableSpec struct {
	Name       string
	PrimaryKey *PrimaryKeySpec
	Columns    []ColumnSpec
}

// PrimaryKeySpec describes the table's primary key. Identity keys are
// assigned by the backend (surrogate); non-identity keys are natural keys
// supplied by the loader (e.g. DateKey).
type PrimaryKeySpec struct {
	Name     string
	Type     string
	Identity bool
}

type ColumnSpec struct {
	Name       string
	Type       string
	Nullable   bool
	Unique     bool
	References string // "Table(Column)", raw REFERENCES clause
}
