package warehouse

import (
	"context"
	"fmt"

	"flightdw/internal/storage"
)

// KeyMaps holds the warehouse's current dimension keys, refreshed after
// dimension loading so fact resolution sees exactly what is committed.
type KeyMaps struct {
	Dates    map[int]struct{}
	Airlines map[string]int64
	Airports map[string]int64
}

// FetchKeyMaps reads all dimension keys from the warehouse.
func FetchKeyMaps(ctx context.Context, wh storage.Warehouse) (KeyMaps, error) {
	km := KeyMaps{
		Dates:    map[int]struct{}{},
		Airlines: map[string]int64{},
		Airports: map[string]int64{},
	}

	rows, err := wh.Query(ctx, "SELECT DateKey FROM DimDate")
	if err != nil {
		return KeyMaps{}, fmt.Errorf("fetch date keys: %w", err)
	}
	for _, r := range rows {
		if len(r) < 1 {
			continue
		}
		if k, ok := storage.AsInt64(r[0]); ok {
			km.Dates[int(k)] = struct{}{}
		}
	}

	rows, err = wh.Query(ctx, "SELECT IATA_CODE, AirlineKey FROM DimAirline")
	if err != nil {
		return KeyMaps{}, fmt.Errorf("fetch airline keys: %w", err)
	}
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		iata := storage.NormalizeKey(r[0])
		if k, ok := storage.AsInt64(r[1]); ok && iata != "" {
			km.Airlines[iata] = k
		}
	}

	rows, err = wh.Query(ctx, "SELECT IATA_CODE, AirportKey FROM DimAirport")
	if err != nil {
		return KeyMaps{}, fmt.Errorf("fetch airport keys: %w", err)
	}
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		iata := storage.NormalizeKey(r[0])
		if k, ok := storage.AsInt64(r[1]); ok && iata != "" {
			km.Airports[iata] = k
		}
	}

	return km, nil
}

// Skip reasons, keyed by the first foreign key that failed to resolve.
const (
	SkipAirline     = "airline"
	SkipOrigin      = "origin_airport"
	SkipDestination = "destination_airport"
	SkipDate        = "date"
)

// FactResolution is the outcome of resolving one batch of flight records.
// Examined == Admitted + Skipped always holds, where Admitted == len(Rows).
type FactResolution struct {
	Rows []FactRow

	Examined  int
	Admitted  int
	Skipped   int
	SkippedBy map[string]int

	TimeDiagnostics TimeDiagnostics
}

// ResolveFacts turns flight records into admissible fact rows. A record is
// admitted only when all its dimension keys resolve; the first unresolved
// key determines its skip reason. Departure times are normalized for every
// examined record, so time diagnostics cover skipped rows too; absent
// (NULL) values count as diagnostics like any other rejected value.
func ResolveFacts(flights []FlightRecord, km KeyMaps) FactResolution {
	res := FactResolution{
		Rows:      make([]FactRow, 0, len(flights)),
		SkippedBy: map[string]int{},
	}

	for i, f := range flights {
		res.Examined++

		var depTime *string
		if s, ok := NormalizeDepartureTime(f.DepartureTimeRaw); ok {
			depTime = &s
		} else {
			res.TimeDiagnostics.Record(i, f.DepartureTimeRaw)
		}

		skip := func(reason string) {
			res.Skipped++
			res.SkippedBy[reason]++
		}

		airlineKey, ok := km.Airlines[f.AirlineIATA]
		if !ok {
			skip(SkipAirline)
			continue
		}
		originKey, ok := km.Airports[f.OriginIATA]
		if !ok {
			skip(SkipOrigin)
			continue
		}
		destKey, ok := km.Airports[f.DestIATA]
		if !ok {
			skip(SkipDestination)
			continue
		}
		dateKey := DateKey(f.Year, f.Month, f.Day)
		if _, ok := km.Dates[dateKey]; !ok {
			skip(SkipDate)
			continue
		}

		res.Admitted++
		res.Rows = append(res.Rows, FactRow{
			DateKey:        dateKey,
			AirlineKey:     airlineKey,
			OriginKey:      originKey,
			DestKey:        destKey,
			Distance:       f.Distance,
			ArrivalDelay:   f.ArrivalDelay,
			DepartureDelay: f.DepartureDelay,
			Cancelled:      f.Cancelled,
			DepartureTime:  depTime,
			CancelReason:   f.CancelReason,
		})
	}

	return res
}
