package warehouse

import "sort"

// BuildDateDim derives candidate DimDate rows from flight records. One row
// per distinct (year, month, day), in first-seen order so repeated runs over
// the same extract produce identical candidate lists.
func BuildDateDim(flights []FlightRecord) []DateRow {
	seen := make(map[int]struct{}, len(flights))
	out := make([]DateRow, 0, 64)
	for _, f := range flights {
		key := DateKey(f.Year, f.Month, f.Day)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, DateRow{DateKey: key, Year: f.Year, Month: f.Month, Day: f.Day})
	}
	return out
}

// BuildAirlineDim derives candidate DimAirline rows. Duplicate IATA codes
// collapse to the first occurrence; rows with a blank IATA code are dropped
// because the natural key is NOT NULL UNIQUE. Output is sorted by IATA code
// for deterministic inserts.
func BuildAirlineDim(airlines []AirlineRecord) []AirlineRow {
	seen := make(map[string]struct{}, len(airlines))
	out := make([]AirlineRow, 0, len(airlines))
	for _, a := range airlines {
		if a.IATA == "" {
			continue
		}
		if _, ok := seen[a.IATA]; ok {
			continue
		}
		seen[a.IATA] = struct{}{}
		out = append(out, AirlineRow{IATA: a.IATA, Name: a.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IATA < out[j].IATA })
	return out
}

// BuildAirportDim derives candidate DimAirport rows, with the same dedupe
// and ordering rules as BuildAirlineDim.
func BuildAirportDim(airports []AirportRecord) []AirportRow {
	seen := make(map[string]struct{}, len(airports))
	out := make([]AirportRow, 0, len(airports))
	for _, a := range airports {
		if a.IATA == "" {
			continue
		}
		if _, ok := seen[a.IATA]; ok {
			continue
		}
		seen[a.IATA] = struct{}{}
		out = append(out, AirportRow{IATA: a.IATA, Name: a.Name, City: a.City, State: a.State})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IATA < out[j].IATA })
	return out
}
