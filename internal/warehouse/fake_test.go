package warehouse

import (
	"context"
	"fmt"
	"strings"

	"flightdw/internal/storage"
)

// fakeWarehouse is an in-memory storage.Warehouse with the same implicit
// transaction semantics as the real backends: BulkInsert writes to pending
// state, Commit publishes it, Rollback discards it. It understands exactly
// the queries the pipeline issues.
type fakeWarehouse struct {
	dates    map[int]struct{}
	airlines map[string]int64
	airports map[string]int64
	nextKey  int64

	facts [][]any

	pending []pendingInsert

	// calls records the operation sequence, e.g.
	// "bulkinsert:FactFlight:50000", "commit", "rollback".
	calls []string

	// failBulkOn aborts the Nth BulkInsert call for a table (1-based).
	failBulkOn map[string]int
	bulkCalls  map[string]int
}

type pendingInsert struct {
	table string
	rows  [][]any
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		dates:      map[int]struct{}{},
		airlines:   map[string]int64{},
		airports:   map[string]int64{},
		failBulkOn: map[string]int{},
		bulkCalls:  map[string]int{},
	}
}

func (f *fakeWarehouse) EnsureSchema(ctx context.Context, tables []storage.TableSpec) error {
	f.calls = append(f.calls, "ensureschema")
	return nil
}

func (f *fakeWarehouse) Exec(ctx context.Context, query string, args ...any) error {
	f.calls = append(f.calls, "exec")
	return nil
}

func (f *fakeWarehouse) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	f.calls = append(f.calls, "query")
	switch strings.TrimSpace(query) {
	case "SELECT DateKey FROM DimDate":
		out := make([][]any, 0, len(f.dates))
		for k := range f.dates {
			out = append(out, []any{int64(k)})
		}
		return out, nil
	case "SELECT IATA_CODE, AirlineKey FROM DimAirline":
		out := make([][]any, 0, len(f.airlines))
		for iata, k := range f.airlines {
			out = append(out, []any{iata, k})
		}
		return out, nil
	case "SELECT IATA_CODE, AirportKey FROM DimAirport":
		out := make([][]any, 0, len(f.airports))
		for iata, k := range f.airports {
			out = append(out, []any{iata, k})
		}
		return out, nil
	case "SELECT COUNT(*) FROM FactFlight":
		return [][]any{{int64(len(f.facts))}}, nil
	}
	return nil, fmt.Errorf("fakeWarehouse: unexpected query %q", query)
}

func (f *fakeWarehouse) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	f.calls = append(f.calls, fmt.Sprintf("bulkinsert:%s:%d", table, len(rows)))
	f.bulkCalls[table]++
	if n := f.failBulkOn[table]; n > 0 && f.bulkCalls[table] == n {
		return 0, fmt.Errorf("fakeWarehouse: injected failure on %s call %d", table, n)
	}
	f.pending = append(f.pending, pendingInsert{table: table, rows: rows})
	return int64(len(rows)), nil
}

func (f *fakeWarehouse) Commit(ctx context.Context) error {
	f.calls = append(f.calls, "commit")
	for _, p := range f.pending {
		f.apply(p)
	}
	f.pending = nil
	return nil
}

func (f *fakeWarehouse) Rollback(ctx context.Context) error {
	f.calls = append(f.calls, "rollback")
	f.pending = nil
	return nil
}

func (f *fakeWarehouse) apply(p pendingInsert) {
	switch p.table {
	case "DimDate":
		for _, r := range p.rows {
			f.dates[r[0].(int)] = struct{}{}
		}
	case "DimAirline":
		for _, r := range p.rows {
			f.nextKey++
			f.airlines[r[0].(string)] = f.nextKey
		}
	case "DimAirport":
		for _, r := range p.rows {
			f.nextKey++
			f.airports[r[0].(string)] = f.nextKey
		}
	case "FactFlight":
		f.facts = append(f.facts, p.rows...)
	}
}

func (f *fakeWarehouse) EnsureDatabase(ctx context.Context, name string) error {
	f.calls = append(f.calls, "ensuredatabase:"+name)
	return nil
}

func (f *fakeWarehouse) DropDatabase(ctx context.Context, name string) error {
	f.calls = append(f.calls, "dropdatabase:"+name)
	return nil
}

func (f *fakeWarehouse) Close() {}

// countCalls counts call entries with the given prefix.
func (f *fakeWarehouse) countCalls(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// fakeSource serves canned rows per table, or a per-table error.
type fakeSource struct {
	tables  map[string]fakeTable
	errs    map[string]error
	closed  bool
	queried []string
}

type fakeTable struct {
	columns []string
	rows    [][]any
}

func (s *fakeSource) Query(ctx context.Context, table string, limit int) ([][]any, []string, error) {
	s.queried = append(s.queried, table)
	if err := s.errs[table]; err != nil {
		return nil, nil, err
	}
	t, ok := s.tables[table]
	if !ok {
		return nil, nil, fmt.Errorf("fakeSource: no table %q", table)
	}
	rows := t.rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, t.columns, nil
}

func (s *fakeSource) Close() { s.closed = true }
