package warehouse

import (
	"context"
	"fmt"
	"time"

	"flightdw/internal/metrics"
	"flightdw/internal/storage"
)

// DefaultBatchSize is the fact chunk size used when Loader.BatchSize is
// unset. 50k rows keeps transactions small enough to retry a single chunk
// without redoing the whole period.
const DefaultBatchSize = 50000

// Loader writes dimension and fact rows through the warehouse collaborator.
type Loader struct {
	WH        storage.Warehouse
	BatchSize int
	Logger    Logger
	Metrics   metrics.Backend
}

// DimCounts reports how many new rows each dimension received.
type DimCounts struct {
	Dates    int
	Airlines int
	Airports int
}

func (l *Loader) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return DefaultBatchSize
}

// LoadDimensions inserts the dimension candidates that are not already
// present, then commits once so fact resolution reads a settled key space.
// Re-running with identical candidates inserts zero rows.
//
// On insert failure the open transaction is rolled back and a
// *storage.BulkInsertError is returned; no dimension rows from this call
// survive.
func (l *Loader) LoadDimensions(ctx context.Context, dates []DateRow, airlines []AirlineRow, airports []AirportRow) (DimCounts, error) {
	logf := logfOrDiscard(l.Logger)
	mx := metrics.OrNoop(l.Metrics)
	start := time.Now()

	km, err := FetchKeyMaps(ctx, l.WH)
	if err != nil {
		_ = l.WH.Rollback(ctx)
		return DimCounts{}, err
	}

	var counts DimCounts

	newDates := make([][]any, 0, len(dates))
	for _, d := range dates {
		if _, ok := km.Dates[d.DateKey]; ok {
			continue
		}
		newDates = append(newDates, []any{d.DateKey, d.Year, d.Month, d.Day})
	}
	if len(newDates) > 0 {
		if _, err := l.WH.BulkInsert(ctx, "DimDate", []string{"DateKey", "Year", "Month", "Day"}, newDates); err != nil {
			_ = l.WH.Rollback(ctx)
			return DimCounts{}, &storage.BulkInsertError{Table: "DimDate", Err: err}
		}
	}
	counts.Dates = len(newDates)

	newAirlines := make([][]any, 0, len(airlines))
	for _, a := range airlines {
		if _, ok := km.Airlines[a.IATA]; ok {
			continue
		}
		newAirlines = append(newAirlines, []any{a.IATA, a.Name})
	}
	if len(newAirlines) > 0 {
		if _, err := l.WH.BulkInsert(ctx, "DimAirline", []string{"IATA_CODE", "Airline"}, newAirlines); err != nil {
			_ = l.WH.Rollback(ctx)
			return DimCounts{}, &storage.BulkInsertError{Table: "DimAirline", Err: err}
		}
	}
	counts.Airlines = len(newAirlines)

	newAirports := make([][]any, 0, len(airports))
	for _, a := range airports {
		if _, ok := km.Airports[a.IATA]; ok {
			continue
		}
		newAirports = append(newAirports, []any{a.IATA, a.Name, a.City, a.State})
	}
	if len(newAirports) > 0 {
		if _, err := l.WH.BulkInsert(ctx, "DimAirport", []string{"IATA_CODE", "Airport", "City", "State"}, newAirports); err != nil {
			_ = l.WH.Rollback(ctx)
			return DimCounts{}, &storage.BulkInsertError{Table: "DimAirport", Err: err}
		}
	}
	counts.Airports = len(newAirports)

	if err := l.WH.Commit(ctx); err != nil {
		return DimCounts{}, fmt.Errorf("commit dimensions: %w", err)
	}

	logf("stage=load_dims new_dates=%d new_airlines=%d new_airports=%d duration=%s",
		counts.Dates, counts.Airlines, counts.Airports, durMS(start))
	mx.ObserveHistogram(metrics.MetricStepDurationSeconds, time.Since(start).Seconds(),
		metrics.Labels{"step": "load_dims", "status": "success"})

	return counts, nil
}

var factColumns = []string{
	"DateKey", "AirlineKey", "OriginAirportKey", "DestAirportKey",
	"Distance", "ArrivalDelay", "DepartureDelay",
	"CancelledFlag", "DepartureTime", "CancelReason",
}

// LoadFacts inserts fact rows in chunks of BatchSize, committing after each
// chunk. A chunk failure rolls back only that chunk; earlier chunks stay
// committed. Returns the number of rows durably inserted either way.
func (l *Loader) LoadFacts(ctx context.Context, facts []FactRow) (int64, error) {
	logf := logfOrDiscard(l.Logger)
	mx := metrics.OrNoop(l.Metrics)
	size := l.batchSize()

	var inserted int64
	for chunkIdx, off := 0, 0; off < len(facts); chunkIdx, off = chunkIdx+1, off+size {
		end := off + size
		if end > len(facts) {
			end = len(facts)
		}

		chunk := make([][]any, 0, end-off)
		for _, f := range facts[off:end] {
			chunk = append(chunk, []any{
				f.DateKey, f.AirlineKey, f.OriginKey, f.DestKey,
				nullableInt(f.Distance), nullableInt(f.ArrivalDelay), nullableInt(f.DepartureDelay),
				f.Cancelled, nullableString(f.DepartureTime), nullableString(f.CancelReason),
			})
		}

		start := time.Now()
		n, err := l.WH.BulkInsert(ctx, "FactFlight", factColumns, chunk)
		if err != nil {
			_ = l.WH.Rollback(ctx)
			mx.IncCounter(metrics.MetricStepTotal, 1, metrics.Labels{"step": "load_facts", "status": "error"})
			return inserted, &storage.BulkInsertError{Table: "FactFlight", Chunk: chunkIdx, Err: err}
		}
		if err := l.WH.Commit(ctx); err != nil {
			mx.IncCounter(metrics.MetricStepTotal, 1, metrics.Labels{"step": "load_facts", "status": "error"})
			return inserted, &storage.BulkInsertError{Table: "FactFlight", Chunk: chunkIdx, Err: err}
		}

		inserted += n
		mx.IncCounter(metrics.MetricBatchesTotal, 1, nil)
		mx.IncCounter(metrics.MetricRecordsTotal, float64(n), metrics.Labels{"kind": "inserted"})
		logf("stage=load_facts chunk=%d rows=%d inserted_total=%d duration=%s",
			chunkIdx, len(chunk), inserted, durMS(start))
	}

	return inserted, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
