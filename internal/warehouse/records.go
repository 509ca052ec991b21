package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"flightdw/internal/storage"
)

// Source table column names. Extraction resolves each name to an index once
// per result set, so a missing column fails record construction up front
// instead of erroring row by row.
const (
	colYear           = "YEAR"
	colMonth          = "MONTH"
	colDay            = "DAY"
	colAirline        = "AIRLINE"
	colOrigin         = "ORIGIN_AIRPORT"
	colDestination    = "DESTINATION_AIRPORT"
	colDistance       = "DISTANCE"
	colArrivalDelay   = "ARRIVAL_DELAY"
	colDepartureDelay = "DEPARTURE_DELAY"
	colCancelled      = "CANCELLED"
	colDepartureTime  = "DEPARTURE_TIME"
	colCancelReason   = "CANCELLATION_REASON"

	colIATACode    = "IATA_CODE"
	colAirlineName = "AIRLINE"
	colAirportName = "AIRPORT"
	colCity        = "CITY"
	colState       = "STATE"
)

type columnIndex map[string]int

// buildColumnIndex maps required column names to positions. Column matching
// is case-insensitive because backends disagree on identifier folding.
func buildColumnIndex(table string, columns []string, required []string) (columnIndex, error) {
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		byName[strings.ToUpper(strings.TrimSpace(c))] = i
	}
	idx := make(columnIndex, len(required))
	for _, name := range required {
		i, ok := byName[name]
		if !ok {
			return nil, &storage.SchemaMismatch{Table: table, Column: name}
		}
		idx[name] = i
	}
	return idx, nil
}

func (ix columnIndex) val(row []any, name string) any {
	i, ok := ix[name]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

// FlightRecordsFromRows converts raw FLIGHT rows into typed records.
// Rows whose calendar components cannot be read as integers are dropped
// (they could never produce a resolvable date key); the dropped count is
// returned so callers can report it alongside skips.
func FlightRecordsFromRows(rows [][]any, columns []string) ([]FlightRecord, int, error) {
	ix, err := buildColumnIndex("FLIGHT", columns, []string{
		colYear, colMonth, colDay,
		colAirline, colOrigin, colDestination,
		colDistance, colArrivalDelay, colDepartureDelay,
		colCancelled, colDepartureTime, colCancelReason,
	})
	if err != nil {
		return nil, 0, err
	}

	var dropped int
	out := make([]FlightRecord, 0, len(rows))
	for _, row := range rows {
		year, okY := asInt(ix.val(row, colYear))
		month, okM := asInt(ix.val(row, colMonth))
		day, okD := asInt(ix.val(row, colDay))
		if !okY || !okM || !okD {
			dropped++
			continue
		}
		out = append(out, FlightRecord{
			Year:  year,
			Month: month,
			Day:   day,

			AirlineIATA: asString(ix.val(row, colAirline)),
			OriginIATA:  asString(ix.val(row, colOrigin)),
			DestIATA:    asString(ix.val(row, colDestination)),

			Distance:       asIntPtr(ix.val(row, colDistance)),
			ArrivalDelay:   asIntPtr(ix.val(row, colArrivalDelay)),
			DepartureDelay: asIntPtr(ix.val(row, colDepartureDelay)),

			Cancelled:        asBool(ix.val(row, colCancelled)),
			DepartureTimeRaw: ix.val(row, colDepartureTime),
			CancelReason:     asStringPtr(ix.val(row, colCancelReason)),
		})
	}
	return out, dropped, nil
}

// AirlineRecordsFromRows converts raw AIRLINE rows into typed records.
func AirlineRecordsFromRows(rows [][]any, columns []string) ([]AirlineRecord, error) {
	ix, err := buildColumnIndex("AIRLINE", columns, []string{colIATACode, colAirlineName})
	if err != nil {
		return nil, err
	}
	out := make([]AirlineRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, AirlineRecord{
			IATA: asString(ix.val(row, colIATACode)),
			Name: asString(ix.val(row, colAirlineName)),
		})
	}
	return out, nil
}

// AirportRecordsFromRows converts raw AIRPORT rows into typed records.
func AirportRecordsFromRows(rows [][]any, columns []string) ([]AirportRecord, error) {
	ix, err := buildColumnIndex("AIRPORT", columns, []string{colIATACode, colAirportName, colCity, colState})
	if err != nil {
		return nil, err
	}
	out := make([]AirportRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, AirportRecord{
			IATA:  asString(ix.val(row, colIATACode)),
			Name:  asString(ix.val(row, colAirportName)),
			City:  asString(ix.val(row, colCity)),
			State: asString(ix.val(row, colState)),
		})
	}
	return out, nil
}

// Coercion helpers tolerate the value types the supported drivers actually
// produce: int64 and friends, float64, []byte, string, bool, time.Time, nil.

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case []byte:
		return parseInt(string(t))
	case string:
		return parseInt(t)
	default:
		return 0, false
	}
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func asIntPtr(v any) *int {
	n, ok := asInt(v)
	if !ok {
		return nil
	}
	return &n
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func asStringPtr(v any) *string {
	s := asString(v)
	if s == "" {
		return nil
	}
	return &s
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case []byte:
		return boolString(string(t))
	case string:
		return boolString(t)
	default:
		return false
	}
}

func boolString(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	return false
}
