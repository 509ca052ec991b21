package seed

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"flightdw/internal/storage"
)

// fakeDB is a minimal storage.Warehouse capturing committed inserts.
type fakeDB struct {
	tables  map[string][][]any
	pending map[string][][]any
	schemas int

	failInsertOn string
	commits      int
	rollbacks    int
}

func newFakeDB() *fakeDB {
	return &fakeDB{tables: map[string][][]any{}, pending: map[string][][]any{}}
}

func (f *fakeDB) EnsureSchema(ctx context.Context, tables []storage.TableSpec) error {
	f.schemas++
	return nil
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...any) error { return nil }

func (f *fakeDB) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	return nil, fmt.Errorf("fakeDB: no queries expected, got %q", query)
}

func (f *fakeDB) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if table == f.failInsertOn {
		return 0, fmt.Errorf("fakeDB: injected %s failure", table)
	}
	f.pending[table] = append(f.pending[table], rows...)
	return int64(len(rows)), nil
}

func (f *fakeDB) Commit(ctx context.Context) error {
	f.commits++
	for t, rows := range f.pending {
		f.tables[t] = append(f.tables[t], rows...)
	}
	f.pending = map[string][][]any{}
	return nil
}

func (f *fakeDB) Rollback(ctx context.Context) error {
	f.rollbacks++
	f.pending = map[string][][]any{}
	return nil
}

func (f *fakeDB) EnsureDatabase(ctx context.Context, name string) error { return nil }
func (f *fakeDB) DropDatabase(ctx context.Context, name string) error   { return nil }
func (f *fakeDB) Close()                                                {}

func rc(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

const airlinesCSV = "IATA_CODE,AIRLINE\nAA,American Airlines Inc.\nUA,United Air Lines Inc.\n"

const airportsCSV = "IATA_CODE,AIRPORT,CITY,STATE\n" +
	"SFO,San Francisco International,San Francisco,CA\n" +
	"JFK,John F. Kennedy International,New York,NY\n"

func flightsCSV(rows ...string) string {
	header := "YEAR,MONTH,DAY,AIRLINE,ORIGIN_AIRPORT,DESTINATION_AIRPORT," +
		"DISTANCE,ARRIVAL_DELAY,DEPARTURE_DELAY,CANCELLED,DEPARTURE_TIME,CANCELLATION_REASON\n"
	return header + strings.Join(rows, "\n") + "\n"
}

func goodFlight() string {
	return "2015,3,5,AA,SFO,JFK,2586,-4,2,0,08:15:00,"
}

func TestSeedRunLoadsAllTables(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	l := &Loader{WH: db}

	stats, err := l.Run(context.Background(),
		rc(airlinesCSV), rc(airportsCSV),
		rc(flightsCSV(goodFlight(), "2015,3,6,UA,JFK,SFO,2586,10,,1,,B")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if db.schemas != 1 {
		t.Errorf("EnsureSchema calls = %d, want 1", db.schemas)
	}
	if stats.Airlines != 2 || stats.Airports != 2 {
		t.Errorf("refs = %d/%d, want 2/2", stats.Airlines, stats.Airports)
	}
	if stats.FlightsRead != 2 || stats.FlightsInserted != 2 {
		t.Errorf("flights read=%d inserted=%d, want 2/2", stats.FlightsRead, stats.FlightsInserted)
	}
	if got := len(db.tables["FLIGHT"]); got != 2 {
		t.Errorf("FLIGHT rows = %d, want 2", got)
	}

	// Empty CSV cells land as SQL NULLs.
	second := db.tables["FLIGHT"][1]
	if second[8] != nil {
		t.Errorf("empty DEPARTURE_DELAY should be nil, got %v", second[8])
	}
	if second[10] != nil {
		t.Errorf("empty DEPARTURE_TIME should be nil, got %v", second[10])
	}
}

func TestSeedRunJSONFormat(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	l := &Loader{WH: db, Opt: Options{Format: "json"}}

	airlinesJSON := `[
		{"iata_code": "AA", "airline": "American Airlines Inc."},
		{"iata_code": "UA", "airline": "United Air Lines Inc."}
	]`
	airportsJSON := `[
		{"iata_code": "SFO", "airport": "San Francisco International", "city": "San Francisco", "state": "CA"},
		{"iata_code": "JFK", "airport": "John F. Kennedy International", "city": "New York", "state": "NY"}
	]`
	flightsJSON := `[
		{"year": 2015, "month": 3, "day": 5, "airline": "AA", "origin_airport": "SFO",
		 "destination_airport": "JFK", "distance": 2586, "arrival_delay": -4,
		 "departure_delay": 2, "cancelled": 0, "departure_time": "08:15:00"},
		{"year": 2015, "month": 3, "day": 6, "airline": "UA", "origin_airport": "JFK",
		 "destination_airport": "SFO", "distance": 2586, "cancelled": 1,
		 "cancellation_reason": "B"}
	]`

	stats, err := l.Run(context.Background(), rc(airlinesJSON), rc(airportsJSON), rc(flightsJSON))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Airlines != 2 || stats.Airports != 2 {
		t.Errorf("refs = %d/%d, want 2/2", stats.Airlines, stats.Airports)
	}
	if stats.FlightsInserted != 2 {
		t.Errorf("flights inserted = %d, want 2", stats.FlightsInserted)
	}

	second := db.tables["FLIGHT"][1]
	if got, ok := second[0].(int64); !ok || got != 2015 {
		t.Errorf("YEAR = %v (%T), want int64 2015", second[0], second[0])
	}
	if second[10] != nil {
		t.Errorf("absent departure_time should be nil, got %v", second[10])
	}
}

// failingReader surfaces its error on the first read, as an interrupted
// source stream would.
type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
func (r *failingReader) Close() error             { return nil }

func TestSeedTreatsCanceledFlightStreamAsClean(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	l := &Loader{WH: db}

	// Cancellation arrives wrapped by the parser, not as the bare sentinel.
	canceled := &failingReader{err: fmt.Errorf("read flights: %w", context.Canceled)}

	stats, err := l.Run(context.Background(), rc(airlinesCSV), rc(airportsCSV), canceled)
	if err != nil {
		t.Fatalf("Run: %v (wrapped cancellation must not fail the load)", err)
	}
	if stats.FlightsInserted != 0 {
		t.Errorf("FlightsInserted = %d, want 0", stats.FlightsInserted)
	}
}

func TestSeedRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	l := &Loader{WH: newFakeDB(), Opt: Options{Format: "xml"}}
	_, err := l.Run(context.Background(), rc(""), rc(""), rc(""))
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("err = %v, want unsupported format", err)
	}
}

func TestSeedFiltersUnknownReferences(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	l := &Loader{WH: db}

	stats, err := l.Run(context.Background(),
		rc(airlinesCSV), rc(airportsCSV),
		rc(flightsCSV(
			goodFlight(),
			"2015,3,5,ZZ,SFO,JFK,1,,,0,,", // unknown airline
			"2015,3,5,AA,XXX,JFK,1,,,0,,", // unknown origin
			"2015,3,5,AA,SFO,YYY,1,,,0,,", // unknown destination
		)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.FlightsFiltered != 3 {
		t.Errorf("FlightsFiltered = %d, want 3", stats.FlightsFiltered)
	}
	if stats.FlightsInserted != 1 {
		t.Errorf("FlightsInserted = %d, want 1", stats.FlightsInserted)
	}
}

func TestSeedExcludedRowRanges(t *testing.T) {
	t.Parallel()

	rows := make([]string, 10)
	for i := range rows {
		rows[i] = goodFlight()
	}

	db := newFakeDB()
	l := &Loader{
		WH: db,
		Opt: Options{
			ExcludedRowRanges: []RowRange{{Start: 2, End: 4, Reason: "corrupt export span"}},
		},
	}

	stats, err := l.Run(context.Background(), rc(airlinesCSV), rc(airportsCSV), rc(flightsCSV(rows...)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FlightsExcluded != 3 {
		t.Errorf("FlightsExcluded = %d, want 3 (rows 2..4)", stats.FlightsExcluded)
	}
	if stats.FlightsInserted != 7 {
		t.Errorf("FlightsInserted = %d, want 7", stats.FlightsInserted)
	}
}

func TestSeedRowLimit(t *testing.T) {
	t.Parallel()

	rows := make([]string, 20)
	for i := range rows {
		rows[i] = goodFlight()
	}

	db := newFakeDB()
	l := &Loader{WH: db, Opt: Options{RowLimit: 5}}

	stats, err := l.Run(context.Background(), rc(airlinesCSV), rc(airportsCSV), rc(flightsCSV(rows...)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FlightsRead != 5 || stats.FlightsInserted != 5 {
		t.Errorf("read=%d inserted=%d, want 5/5", stats.FlightsRead, stats.FlightsInserted)
	}
}

func TestSeedBatchesFlights(t *testing.T) {
	t.Parallel()

	rows := make([]string, 7)
	for i := range rows {
		rows[i] = goodFlight()
	}

	db := newFakeDB()
	l := &Loader{WH: db, Opt: Options{BatchSize: 3}}

	stats, err := l.Run(context.Background(), rc(airlinesCSV), rc(airportsCSV), rc(flightsCSV(rows...)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FlightsInserted != 7 {
		t.Errorf("FlightsInserted = %d, want 7", stats.FlightsInserted)
	}
	// 2 reference commits + 3 flight chunk commits (3+3+1).
	if db.commits != 5 {
		t.Errorf("commits = %d, want 5", db.commits)
	}
}

func TestSeedDeduplicatesReferenceRows(t *testing.T) {
	t.Parallel()

	dup := "IATA_CODE,AIRLINE\nAA,American\nAA,American again\n,\n"
	db := newFakeDB()
	l := &Loader{WH: db}

	stats, err := l.Run(context.Background(), rc(dup), rc(airportsCSV), rc(flightsCSV(goodFlight())))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Airlines != 1 {
		t.Errorf("Airlines = %d, want 1 (duplicate and blank IATA dropped)", stats.Airlines)
	}
}

func TestSeedInsertFailureRollsBack(t *testing.T) {
	t.Parallel()

	db := newFakeDB()
	db.failInsertOn = "FLIGHT"
	l := &Loader{WH: db, Opt: Options{BatchSize: 1}}

	_, err := l.Run(context.Background(), rc(airlinesCSV), rc(airportsCSV), rc(flightsCSV(goodFlight())))
	if err == nil {
		t.Fatal("Run should fail on FLIGHT insert")
	}
	if db.rollbacks == 0 {
		t.Error("expected a rollback after the failed insert")
	}
	if len(db.tables["FLIGHT"]) != 0 {
		t.Errorf("FLIGHT rows = %d, want 0", len(db.tables["FLIGHT"]))
	}
}
