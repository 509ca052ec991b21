package warehouse

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"flightdw/internal/storage"
)

func testDims() ([]DateRow, []AirlineRow, []AirportRow) {
	dates := []DateRow{
		{DateKey: 20230305, Year: 2023, Month: 3, Day: 5},
		{DateKey: 20230306, Year: 2023, Month: 3, Day: 6},
	}
	airlines := []AirlineRow{{IATA: "AA", Name: "American"}, {IATA: "UA", Name: "United"}}
	airports := []AirportRow{{IATA: "JFK"}, {IATA: "SFO"}}
	return dates, airlines, airports
}

func TestLoadDimensionsInsertsAndCommitsOnce(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	l := &Loader{WH: wh}
	dates, airlines, airports := testDims()

	counts, err := l.LoadDimensions(context.Background(), dates, airlines, airports)
	if err != nil {
		t.Fatalf("LoadDimensions: %v", err)
	}
	if counts.Dates != 2 || counts.Airlines != 2 || counts.Airports != 2 {
		t.Errorf("counts = %+v, want 2/2/2", counts)
	}
	if got := wh.countCalls("commit"); got != 1 {
		t.Errorf("commits = %d, want 1 (all dimensions in one transaction)", got)
	}
	if len(wh.dates) != 2 || len(wh.airlines) != 2 || len(wh.airports) != 2 {
		t.Errorf("committed dims = %d/%d/%d", len(wh.dates), len(wh.airlines), len(wh.airports))
	}
}

func TestLoadDimensionsIdempotent(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	l := &Loader{WH: wh}
	dates, airlines, airports := testDims()

	if _, err := l.LoadDimensions(context.Background(), dates, airlines, airports); err != nil {
		t.Fatalf("first LoadDimensions: %v", err)
	}

	counts, err := l.LoadDimensions(context.Background(), dates, airlines, airports)
	if err != nil {
		t.Fatalf("second LoadDimensions: %v", err)
	}
	if counts != (DimCounts{}) {
		t.Errorf("second run counts = %+v, want all zero", counts)
	}
	if got := wh.countCalls("bulkinsert:DimDate"); got != 1 {
		t.Errorf("DimDate inserts = %d, want 1 (nothing new second time)", got)
	}
}

func TestLoadDimensionsPartialOverlapInsertsOnlyNew(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	wh.airlines["AA"] = 1
	wh.nextKey = 1
	l := &Loader{WH: wh}
	dates, airlines, airports := testDims()

	counts, err := l.LoadDimensions(context.Background(), dates, airlines, airports)
	if err != nil {
		t.Fatalf("LoadDimensions: %v", err)
	}
	if counts.Airlines != 1 {
		t.Errorf("Airlines = %d, want 1 (AA already present)", counts.Airlines)
	}
	if len(wh.airlines) != 2 {
		t.Errorf("airlines in warehouse = %d, want 2", len(wh.airlines))
	}
}

func TestLoadDimensionsRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	wh.failBulkOn["DimAirport"] = 1
	l := &Loader{WH: wh}
	dates, airlines, airports := testDims()

	_, err := l.LoadDimensions(context.Background(), dates, airlines, airports)
	var bulkErr *storage.BulkInsertError
	if !errors.As(err, &bulkErr) {
		t.Fatalf("err = %v, want *storage.BulkInsertError", err)
	}
	if bulkErr.Table != "DimAirport" {
		t.Errorf("Table = %q, want DimAirport", bulkErr.Table)
	}
	// Earlier dimension inserts from the same call must not survive.
	if len(wh.dates) != 0 || len(wh.airlines) != 0 {
		t.Errorf("dims leaked after rollback: dates=%d airlines=%d", len(wh.dates), len(wh.airlines))
	}
	if got := wh.countCalls("commit"); got != 0 {
		t.Errorf("commits = %d, want 0", got)
	}
}

func makeFacts(n int) []FactRow {
	out := make([]FactRow, n)
	for i := range out {
		out[i] = FactRow{DateKey: 20230305, AirlineKey: 1, OriginKey: 10, DestKey: 11}
	}
	return out
}

func TestLoadFactsChunksAndCommitsPerChunk(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	l := &Loader{WH: wh, BatchSize: 50000}

	inserted, err := l.LoadFacts(context.Background(), makeFacts(125000))
	if err != nil {
		t.Fatalf("LoadFacts: %v", err)
	}
	if inserted != 125000 {
		t.Errorf("inserted = %d, want 125000", inserted)
	}

	// 125000 rows at batch 50000: chunks of 50000, 50000, 25000, each
	// followed by its own commit.
	wantCalls := []string{
		"bulkinsert:FactFlight:50000", "commit",
		"bulkinsert:FactFlight:50000", "commit",
		"bulkinsert:FactFlight:25000", "commit",
	}
	if got := fmt.Sprint(wh.calls); got != fmt.Sprint(wantCalls) {
		t.Errorf("calls = %v, want %v", wh.calls, wantCalls)
	}
	if len(wh.facts) != 125000 {
		t.Errorf("facts in warehouse = %d", len(wh.facts))
	}
}

func TestLoadFactsExactMultipleOfBatch(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	l := &Loader{WH: wh, BatchSize: 100}

	inserted, err := l.LoadFacts(context.Background(), makeFacts(300))
	if err != nil {
		t.Fatalf("LoadFacts: %v", err)
	}
	if inserted != 300 {
		t.Errorf("inserted = %d, want 300", inserted)
	}
	if got := wh.countCalls("bulkinsert:FactFlight"); got != 3 {
		t.Errorf("chunks = %d, want 3 (no trailing empty chunk)", got)
	}
}

func TestLoadFactsEmptyInput(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	l := &Loader{WH: wh}

	inserted, err := l.LoadFacts(context.Background(), nil)
	if err != nil {
		t.Fatalf("LoadFacts: %v", err)
	}
	if inserted != 0 {
		t.Errorf("inserted = %d, want 0", inserted)
	}
	if len(wh.calls) != 0 {
		t.Errorf("calls = %v, want none", wh.calls)
	}
}

func TestLoadFactsChunkFailureKeepsEarlierChunks(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	wh.failBulkOn["FactFlight"] = 2
	l := &Loader{WH: wh, BatchSize: 100}

	inserted, err := l.LoadFacts(context.Background(), makeFacts(250))
	var bulkErr *storage.BulkInsertError
	if !errors.As(err, &bulkErr) {
		t.Fatalf("err = %v, want *storage.BulkInsertError", err)
	}
	if bulkErr.Chunk != 1 {
		t.Errorf("Chunk = %d, want 1", bulkErr.Chunk)
	}
	if inserted != 100 {
		t.Errorf("inserted = %d, want 100 (first chunk committed)", inserted)
	}
	if len(wh.facts) != 100 {
		t.Errorf("facts in warehouse = %d, want 100", len(wh.facts))
	}
	// Failed chunk rolled back; no third chunk attempted.
	if got := wh.countCalls("bulkinsert:FactFlight"); got != 2 {
		t.Errorf("bulk inserts = %d, want 2", got)
	}
	if got := wh.countCalls("rollback"); got != 1 {
		t.Errorf("rollbacks = %d, want 1", got)
	}
}

func TestLoadFactsNullableColumns(t *testing.T) {
	t.Parallel()

	wh := newFakeWarehouse()
	l := &Loader{WH: wh}

	dist := 500
	dep := "08:15:00"
	facts := []FactRow{
		{DateKey: 20230305, AirlineKey: 1, OriginKey: 10, DestKey: 11, Distance: &dist, DepartureTime: &dep},
		{DateKey: 20230305, AirlineKey: 1, OriginKey: 10, DestKey: 11},
	}

	if _, err := l.LoadFacts(context.Background(), facts); err != nil {
		t.Fatalf("LoadFacts: %v", err)
	}

	first := wh.facts[0]
	if first[4] != 500 {
		t.Errorf("Distance cell = %v, want 500", first[4])
	}
	if first[8] != "08:15:00" {
		t.Errorf("DepartureTime cell = %v", first[8])
	}
	second := wh.facts[1]
	if second[4] != nil || second[8] != nil {
		t.Errorf("nil pointers should load as SQL NULL, got %v / %v", second[4], second[8])
	}
}
