// Package parser holds the row shape shared by the format-specific
// parsers under this directory.
package parser

// Row is one parsed record. V is aligned to the columns requested from the
// parser; cells missing from the record are nil. Line is the 1-based
// position in the input: physical line for CSV, record ordinal for JSON.
type Row struct {
	V    []any
	Line int
}
