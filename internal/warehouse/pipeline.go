package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"flightdw/internal/metrics"
	"flightdw/internal/storage"
)

// PeriodState tracks how far a yearly period progressed.
type PeriodState int

const (
	StatePending PeriodState = iota
	StateExtracting
	StateTransforming
	StateLoading
	StateDone
	StateFailed
)

func (s PeriodState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExtracting:
		return "extracting"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("PeriodState(%d)", int(s))
	}
}

// PeriodResult is the outcome of one yearly period.
type PeriodResult struct {
	Year  int
	State PeriodState
	Err   error

	Extracted    int
	Dropped      int
	Inserted     int64
	Skipped      int
	SkippedBy    map[string]int
	InvalidTimes int
}

// RunSummary aggregates a whole run.
type RunSummary struct {
	Periods []PeriodResult

	TotalInserted int64
	TotalSkipped  int
	FailedYears   []int

	// FactCount is the warehouse-wide fact row count after the run, taken
	// with a final query. -1 when the count itself failed.
	FactCount int64
}

// Driver runs the yearly ETL periods against one target warehouse.
//
// Source databases are opened per year via OpenSource so a missing or
// unreachable yearly database fails only that year. BatchSize and RowLimit
// of zero mean "default" and "no limit" respectively.
type Driver struct {
	WH         storage.Warehouse
	OpenSource func(ctx context.Context, year int) (storage.Source, error)

	BatchSize int
	RowLimit  int
	Logger    Logger
	Metrics   metrics.Backend
}

// Run processes every configured year, containing each year's failure to
// that year. It never stops early because one year failed; the summary
// records which years failed and why.
func (d *Driver) Run(ctx context.Context, years []int) (RunSummary, error) {
	if d.WH == nil {
		return RunSummary{}, fmt.Errorf("warehouse: Driver.WH is required")
	}
	if d.OpenSource == nil {
		return RunSummary{}, fmt.Errorf("warehouse: Driver.OpenSource is required")
	}

	logf := logfOrDiscard(d.Logger)
	mx := metrics.OrNoop(d.Metrics)

	summary := RunSummary{FactCount: -1}
	for _, year := range years {
		res := d.runYear(ctx, year)
		summary.Periods = append(summary.Periods, res)
		summary.TotalInserted += res.Inserted
		summary.TotalSkipped += res.Skipped

		if res.State == StateFailed {
			summary.FailedYears = append(summary.FailedYears, year)
			// Discard any half-open transaction so the next year starts clean.
			_ = d.WH.Rollback(ctx)
			logf("stage=year year=%d status=failed err=%v", year, res.Err)
			mx.IncCounter(metrics.MetricStepTotal, 1, metrics.Labels{"step": "year", "status": "error"})
			continue
		}
		logf("stage=year year=%d status=ok inserted=%d skipped=%d", year, res.Inserted, res.Skipped)
		mx.IncCounter(metrics.MetricStepTotal, 1, metrics.Labels{"step": "year", "status": "success"})
	}

	if count, err := d.countFacts(ctx); err != nil {
		logf("stage=final_count status=error err=%v", err)
	} else {
		summary.FactCount = count
	}

	logf("stage=run_summary years=%d failed=%d inserted_total=%d skipped_total=%d fact_count=%d",
		len(summary.Periods), len(summary.FailedYears), summary.TotalInserted, summary.TotalSkipped, summary.FactCount)

	return summary, nil
}

func (d *Driver) countFacts(ctx context.Context) (int64, error) {
	rows, err := d.WH.Query(ctx, "SELECT COUNT(*) FROM FactFlight")
	// The count opens an implicit read transaction; finish it either way.
	defer func() { _ = d.WH.Rollback(ctx) }()
	if err != nil {
		return -1, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return -1, fmt.Errorf("warehouse: empty fact count result")
	}
	n, ok := storage.AsInt64(rows[0][0])
	if !ok {
		return -1, fmt.Errorf("warehouse: unreadable fact count %v", rows[0][0])
	}
	return n, nil
}

func (d *Driver) runYear(ctx context.Context, year int) PeriodResult {
	logf := logfOrDiscard(d.Logger)
	mx := metrics.OrNoop(d.Metrics)
	res := PeriodResult{Year: year, State: StatePending}

	fail := func(err error) PeriodResult {
		res.State = StateFailed
		res.Err = err
		return res
	}

	// Extract.
	res.State = StateExtracting
	extractStart := time.Now()

	src, err := d.OpenSource(ctx, year)
	if err != nil {
		return fail(fmt.Errorf("open source year=%d: %w", year, err))
	}
	defer src.Close()

	flightRows, flightCols, err := src.Query(ctx, "FLIGHT", d.RowLimit)
	if err != nil {
		return fail(fmt.Errorf("extract FLIGHT year=%d: %w", year, err))
	}
	airlineRows, airlineCols, err := src.Query(ctx, "AIRLINE", 0)
	if err != nil {
		return fail(fmt.Errorf("extract AIRLINE year=%d: %w", year, err))
	}
	airportRows, airportCols, err := src.Query(ctx, "AIRPORT", 0)
	if err != nil {
		return fail(fmt.Errorf("extract AIRPORT year=%d: %w", year, err))
	}

	res.Extracted = len(flightRows)
	mx.IncCounter(metrics.MetricRecordsTotal, float64(len(flightRows)), metrics.Labels{"kind": "extracted"})
	mx.ObserveHistogram(metrics.MetricStepDurationSeconds, time.Since(extractStart).Seconds(),
		metrics.Labels{"step": "extract", "status": "success"})
	logf("stage=extract year=%d flights=%d airlines=%d airports=%d duration=%s",
		year, len(flightRows), len(airlineRows), len(airportRows), durMS(extractStart))

	if len(flightRows) > 0 {
		// One debug line showing what the driver hands us for TIME columns
		// saves a lot of guessing when a new backend misbehaves.
		if i := indexOfColumn(flightCols, "DEPARTURE_TIME"); i >= 0 && i < len(flightRows[0]) {
			logf("stage=extract year=%d departure_time_sample_type=%T", year, flightRows[0][i])
		}
	}

	// Transform.
	res.State = StateTransforming
	transformStart := time.Now()

	flights, dropped, err := FlightRecordsFromRows(flightRows, flightCols)
	if err != nil {
		return fail(err)
	}
	res.Dropped = dropped
	airlines, err := AirlineRecordsFromRows(airlineRows, airlineCols)
	if err != nil {
		return fail(err)
	}
	airports, err := AirportRecordsFromRows(airportRows, airportCols)
	if err != nil {
		return fail(err)
	}

	dates := BuildDateDim(flights)
	airlineDim := BuildAirlineDim(airlines)
	airportDim := BuildAirportDim(airports)

	logf("stage=transform year=%d records=%d dropped=%d dim_dates=%d dim_airlines=%d dim_airports=%d duration=%s",
		year, len(flights), dropped, len(dates), len(airlineDim), len(airportDim), durMS(transformStart))
	if dropped > 0 {
		mx.IncCounter(metrics.MetricRecordsTotal, float64(dropped), metrics.Labels{"kind": "dropped"})
	}

	// Load.
	res.State = StateLoading
	loader := &Loader{WH: d.WH, BatchSize: d.BatchSize, Logger: d.Logger, Metrics: d.Metrics}

	if _, err := loader.LoadDimensions(ctx, dates, airlineDim, airportDim); err != nil {
		return fail(err)
	}

	km, err := FetchKeyMaps(ctx, d.WH)
	if err != nil {
		_ = d.WH.Rollback(ctx)
		return fail(err)
	}
	_ = d.WH.Rollback(ctx) // close the read transaction

	resolution := ResolveFacts(flights, km)
	res.Skipped = resolution.Skipped
	res.SkippedBy = resolution.SkippedBy
	res.InvalidTimes = resolution.TimeDiagnostics.Count()

	if w := resolution.TimeDiagnostics.Warning(); w != "" {
		logf("stage=transform year=%d warning=%q", year, w)
		mx.IncCounter(metrics.MetricRecordsTotal, float64(res.InvalidTimes), metrics.Labels{"kind": "invalid_time"})
	}
	if resolution.Skipped > 0 {
		logf("stage=resolve year=%d examined=%d admitted=%d skipped=%d reasons=%s",
			year, resolution.Examined, resolution.Admitted, resolution.Skipped, formatSkipReasons(resolution.SkippedBy))
		mx.IncCounter(metrics.MetricRecordsTotal, float64(resolution.Skipped), metrics.Labels{"kind": "skipped"})
	}

	inserted, err := loader.LoadFacts(ctx, resolution.Rows)
	res.Inserted = inserted
	if err != nil {
		return fail(err)
	}

	res.State = StateDone
	return res
}

func indexOfColumn(columns []string, name string) int {
	for i, c := range columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

func formatSkipReasons(byReason map[string]int) string {
	if len(byReason) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(byReason))
	for k := range byReason {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "%s=%d", k, byReason[k])
	}
	return b.String()
}
