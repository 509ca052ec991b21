// Package seed loads the public flight dataset exports (CSV or JSON) into
// a yearly source database, producing the shape the warehouse pipeline
// extracts from.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"flightdw/internal/config"
	"flightdw/internal/parser"
	csvparser "flightdw/internal/parser/csv"
	jsonparser "flightdw/internal/parser/json"
	"flightdw/internal/storage"
	"flightdw/internal/warehouse"
)

// RowRange excludes flight rows by 0-based data row index, inclusive on
// both ends. Used to carve known-bad row spans out of a dataset export
// without editing the file.
type RowRange struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Reason string `json:"reason,omitempty"`
}

func (r RowRange) contains(i int) bool { return i >= r.Start && i <= r.End }

// Options controls a seed run.
type Options struct {
	// Format of the export files: "csv" (default) or "json".
	Format string

	// BatchSize is the flight insert chunk size. Defaults to 50000.
	BatchSize int

	// RowLimit caps flight rows read from the export. 0 means all.
	RowLimit int

	// ExcludedRowRanges drops flight rows by position in the export.
	ExcludedRowRanges []RowRange

	// CSV options passed through to the parser (encoding, header_map
	// etc.). Also consulted in JSON mode for header_map.
	CSV config.Options

	Logger warehouse.Logger
}

// Stats summarizes a seed run.
type Stats struct {
	Airlines int
	Airports int

	FlightsRead     int
	FlightsExcluded int
	FlightsFiltered int
	FlightsInserted int
	BadRows         int
}

// Source table layout. Matches what the pipeline's extract step expects:
// reference tables keyed by IATA code, flights as a flat typed table.
func SourceTables() []storage.TableSpec {
	return []storage.TableSpec{
		{
			Name: "AIRLINE",
			Columns: []storage.ColumnSpec{
				{Name: "IATA_CODE", Type: "varchar(10)", Unique: true},
				{Name: "AIRLINE", Type: "varchar(100)", Nullable: true},
			},
			PrimaryKey: &storage.PrimaryKeySpec{Name: "AirlineID", Type: "int", Identity: true},
		},
		{
			Name: "AIRPORT",
			Columns: []storage.ColumnSpec{
				{Name: "IATA_CODE", Type: "varchar(10)", Unique: true},
				{Name: "AIRPORT", Type: "varchar(200)", Nullable: true},
				{Name: "CITY", Type: "varchar(100)", Nullable: true},
				{Name: "STATE", Type: "varchar(10)", Nullable: true},
			},
			PrimaryKey: &storage.PrimaryKeySpec{Name: "AirportID", Type: "int", Identity: true},
		},
		{
			Name: "FLIGHT",
			Columns: []storage.ColumnSpec{
				{Name: "YEAR", Type: "int"},
				{Name: "MONTH", Type: "int"},
				{Name: "DAY", Type: "int"},
				{Name: "AIRLINE", Type: "varchar(10)", Nullable: true},
				{Name: "ORIGIN_AIRPORT", Type: "varchar(10)", Nullable: true},
				{Name: "DESTINATION_AIRPORT", Type: "varchar(10)", Nullable: true},
				{Name: "DISTANCE", Type: "int", Nullable: true},
				{Name: "ARRIVAL_DELAY", Type: "int", Nullable: true},
				{Name: "DEPARTURE_DELAY", Type: "int", Nullable: true},
				{Name: "CANCELLED", Type: "int"},
				{Name: "DEPARTURE_TIME", Type: "varchar(20)", Nullable: true},
				{Name: "CANCELLATION_REASON", Type: "varchar(10)", Nullable: true},
			},
			PrimaryKey: &storage.PrimaryKeySpec{Name: "FlightRow", Type: "int", Identity: true},
		},
	}
}

var (
	airlineCSVColumns = []string{"iata_code", "airline"}
	airportCSVColumns = []string{"iata_code", "airport", "city", "state"}
	flightCSVColumns  = []string{
		"year", "month", "day", "airline", "origin_airport", "destination_airport",
		"distance", "arrival_delay", "departure_delay", "cancelled", "departure_time", "cancellation_reason",
	}

	airlineDBColumns = []string{"IATA_CODE", "AIRLINE"}
	airportDBColumns = []string{"IATA_CODE", "AIRPORT", "CITY", "STATE"}
	flightDBColumns  = []string{
		"YEAR", "MONTH", "DAY", "AIRLINE", "ORIGIN_AIRPORT", "DESTINATION_AIRPORT",
		"DISTANCE", "ARRIVAL_DELAY", "DEPARTURE_DELAY", "CANCELLED", "DEPARTURE_TIME", "CANCELLATION_REASON",
	}
)

// Loader writes dataset exports into one source database.
type Loader struct {
	WH  storage.Warehouse
	Opt Options
}

func (l *Loader) batchSize() int {
	if l.Opt.BatchSize > 0 {
		return l.Opt.BatchSize
	}
	return 50000
}

func (l *Loader) collect(ctx context.Context, src io.ReadCloser, cols []string, onErr func(int, error)) ([]parser.Row, error) {
	if l.Opt.Format == "json" {
		return jsonparser.Collect(ctx, src, cols, l.Opt.CSV, onErr)
	}
	return csvparser.Collect(ctx, src, cols, l.Opt.CSV, onErr)
}

func (l *Loader) stream(ctx context.Context, src io.ReadCloser, cols []string, out chan<- parser.Row, onErr func(int, error)) error {
	if l.Opt.Format == "json" {
		return jsonparser.StreamRows(ctx, src, cols, l.Opt.CSV, out, onErr)
	}
	return csvparser.StreamRows(ctx, src, cols, l.Opt.CSV, out, onErr)
}

// Run creates the source tables and loads all three exports. Reference
// tables load first; flight rows referencing an unknown airline or airport
// are filtered out so the seeded database is referentially clean.
func (l *Loader) Run(ctx context.Context, airlines, airports, flights io.ReadCloser) (Stats, error) {
	logf := l.logf()
	var stats Stats

	switch l.Opt.Format {
	case "", "csv", "json":
	default:
		return stats, fmt.Errorf("seed: unsupported format %q", l.Opt.Format)
	}

	start := time.Now()
	if err := l.WH.EnsureSchema(ctx, SourceTables()); err != nil {
		return stats, err
	}
	logf("stage=ddl ok duration=%s", time.Since(start).Truncate(time.Millisecond))

	airlineIATAs, n, err := l.loadReference(ctx, airlines, "AIRLINE", airlineCSVColumns, airlineDBColumns, &stats.BadRows)
	if err != nil {
		return stats, fmt.Errorf("seed AIRLINE: %w", err)
	}
	stats.Airlines = n

	airportIATAs, n, err := l.loadReference(ctx, airports, "AIRPORT", airportCSVColumns, airportDBColumns, &stats.BadRows)
	if err != nil {
		return stats, fmt.Errorf("seed AIRPORT: %w", err)
	}
	stats.Airports = n

	if err := l.loadFlights(ctx, flights, airlineIATAs, airportIATAs, &stats); err != nil {
		return stats, fmt.Errorf("seed FLIGHT: %w", err)
	}

	logf("stage=seed_done airlines=%d airports=%d flights_read=%d excluded=%d filtered=%d inserted=%d bad_rows=%d",
		stats.Airlines, stats.Airports, stats.FlightsRead, stats.FlightsExcluded,
		stats.FlightsFiltered, stats.FlightsInserted, stats.BadRows)
	return stats, nil
}

func (l *Loader) logf() func(format string, v ...any) {
	if l.Opt.Logger == nil {
		return func(string, ...any) {}
	}
	return l.Opt.Logger.Printf
}

// loadReference loads one IATA-keyed reference table and returns the set of
// codes that landed in it.
func (l *Loader) loadReference(ctx context.Context, src io.ReadCloser, table string, csvCols, dbCols []string, badRows *int) (map[string]struct{}, int, error) {
	logf := l.logf()

	rows, err := l.collect(ctx, src, csvCols, l.onBadRow(table, badRows))
	if err != nil {
		return nil, 0, err
	}

	codes := make(map[string]struct{}, len(rows))
	recs := make([][]any, 0, len(rows))
	for _, r := range rows {
		iata := storage.NormalizeKey(r.V[0])
		if iata == "" {
			continue
		}
		if _, dup := codes[iata]; dup {
			continue
		}
		codes[iata] = struct{}{}
		rec := make([]any, len(r.V))
		copy(rec, r.V)
		rec[0] = iata
		recs = append(recs, rec)
	}

	if len(recs) > 0 {
		if _, err := l.WH.BulkInsert(ctx, table, dbCols, recs); err != nil {
			_ = l.WH.Rollback(ctx)
			return nil, 0, &storage.BulkInsertError{Table: table, Err: err}
		}
	}
	if err := l.WH.Commit(ctx); err != nil {
		return nil, 0, err
	}

	logf("stage=seed_reference table=%s rows=%d", table, len(recs))
	return codes, len(recs), nil
}

func (l *Loader) loadFlights(ctx context.Context, src io.ReadCloser, airlineIATAs, airportIATAs map[string]struct{}, stats *Stats) error {
	logf := l.logf()
	size := l.batchSize()

	out := make(chan parser.Row, 256)
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.stream(ctx, src, flightCSVColumns, out, l.onBadRow("FLIGHT", &stats.BadRows))
		close(out)
	}()

	flush := func(batch [][]any, chunk int) error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.WH.BulkInsert(ctx, "FLIGHT", flightDBColumns, batch)
		if err != nil {
			_ = l.WH.Rollback(ctx)
			return &storage.BulkInsertError{Table: "FLIGHT", Chunk: chunk, Err: err}
		}
		if err := l.WH.Commit(ctx); err != nil {
			return &storage.BulkInsertError{Table: "FLIGHT", Chunk: chunk, Err: err}
		}
		stats.FlightsInserted += int(n)
		logf("stage=seed_flights chunk=%d rows=%d inserted_total=%d", chunk, len(batch), stats.FlightsInserted)
		return nil
	}

	var (
		batch  [][]any
		chunk  int
		rowIdx = -1
	)

	drainAfter := func() {
		for range out {
		}
	}

	for row := range out {
		rowIdx++
		if l.Opt.RowLimit > 0 && stats.FlightsRead >= l.Opt.RowLimit {
			drainAfter()
			break
		}
		stats.FlightsRead++

		if l.excluded(rowIdx) {
			stats.FlightsExcluded++
			continue
		}

		airline := storage.NormalizeKey(row.V[3])
		origin := storage.NormalizeKey(row.V[4])
		dest := storage.NormalizeKey(row.V[5])
		if !inSet(airlineIATAs, airline) || !inSet(airportIATAs, origin) || !inSet(airportIATAs, dest) {
			stats.FlightsFiltered++
			continue
		}

		rec := make([]any, len(row.V))
		copy(rec, row.V)
		batch = append(batch, rec)

		if len(batch) >= size {
			if err := flush(batch, chunk); err != nil {
				drainAfter()
				<-errCh
				return err
			}
			batch = nil
			chunk++
		}
	}

	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return flush(batch, chunk)
}

func (l *Loader) excluded(rowIdx int) bool {
	for _, r := range l.Opt.ExcludedRowRanges {
		if r.contains(rowIdx) {
			return true
		}
	}
	return false
}

func (l *Loader) onBadRow(table string, badRows *int) func(line int, err error) {
	logf := l.logf()
	return func(line int, err error) {
		*badRows++
		logf("stage=seed_parse table=%s line=%d err=%v", table, line, err)
	}
}

func inSet(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
