package warehouse

import "testing"

func testKeyMaps() KeyMaps {
	return KeyMaps{
		Dates:    map[int]struct{}{20230305: {}, 20230306: {}},
		Airlines: map[string]int64{"AA": 1, "UA": 2},
		Airports: map[string]int64{"SFO": 10, "JFK": 11, "LAX": 12},
	}
}

func TestResolveFactsAdmitsFullyResolvedRows(t *testing.T) {
	t.Parallel()

	flights := []FlightRecord{
		{Year: 2023, Month: 3, Day: 5, AirlineIATA: "AA", OriginIATA: "SFO", DestIATA: "JFK", DepartureTimeRaw: "08:15:00"},
		{Year: 2023, Month: 3, Day: 6, AirlineIATA: "UA", OriginIATA: "LAX", DestIATA: "SFO", DepartureTimeRaw: nil},
	}

	res := ResolveFacts(flights, testKeyMaps())
	if res.Examined != 2 || res.Admitted != 2 || res.Skipped != 0 {
		t.Fatalf("examined=%d admitted=%d skipped=%d, want 2/2/0", res.Examined, res.Admitted, res.Skipped)
	}

	f := res.Rows[0]
	if f.DateKey != 20230305 || f.AirlineKey != 1 || f.OriginKey != 10 || f.DestKey != 11 {
		t.Errorf("resolved keys = %+v", f)
	}
	if f.DepartureTime == nil || *f.DepartureTime != "08:15:00" {
		t.Errorf("DepartureTime = %v, want 08:15:00", f.DepartureTime)
	}
	if res.Rows[1].DepartureTime != nil {
		t.Errorf("absent time should stay null, got %v", *res.Rows[1].DepartureTime)
	}
}

func TestResolveFactsSkipReasons(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		flight FlightRecord
		reason string
	}{
		{
			name:   "unknown airline",
			flight: FlightRecord{Year: 2023, Month: 3, Day: 5, AirlineIATA: "ZZ", OriginIATA: "SFO", DestIATA: "JFK"},
			reason: SkipAirline,
		},
		{
			name:   "unknown origin",
			flight: FlightRecord{Year: 2023, Month: 3, Day: 5, AirlineIATA: "AA", OriginIATA: "XXX", DestIATA: "JFK"},
			reason: SkipOrigin,
		},
		{
			name:   "unknown destination",
			flight: FlightRecord{Year: 2023, Month: 3, Day: 5, AirlineIATA: "AA", OriginIATA: "SFO", DestIATA: "XXX"},
			reason: SkipDestination,
		},
		{
			name:   "unknown date",
			flight: FlightRecord{Year: 1999, Month: 1, Day: 1, AirlineIATA: "AA", OriginIATA: "SFO", DestIATA: "JFK"},
			reason: SkipDate,
		},
		{
			name: "airline reason wins over airport",
			flight: FlightRecord{
				Year: 1999, Month: 1, Day: 1,
				AirlineIATA: "ZZ", OriginIATA: "XXX", DestIATA: "XXX",
			},
			reason: SkipAirline,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := ResolveFacts([]FlightRecord{tc.flight}, testKeyMaps())
			if res.Admitted != 0 || res.Skipped != 1 {
				t.Fatalf("admitted=%d skipped=%d, want 0/1", res.Admitted, res.Skipped)
			}
			if res.SkippedBy[tc.reason] != 1 {
				t.Errorf("SkippedBy = %v, want %s=1", res.SkippedBy, tc.reason)
			}
		})
	}
}

func TestResolveFactsAccountingInvariant(t *testing.T) {
	t.Parallel()

	flights := []FlightRecord{
		{Year: 2023, Month: 3, Day: 5, AirlineIATA: "AA", OriginIATA: "SFO", DestIATA: "JFK"},
		{Year: 2023, Month: 3, Day: 5, AirlineIATA: "ZZ", OriginIATA: "SFO", DestIATA: "JFK"},
		{Year: 2023, Month: 3, Day: 5, AirlineIATA: "AA", OriginIATA: "XXX", DestIATA: "JFK"},
		{Year: 1999, Month: 1, Day: 1, AirlineIATA: "UA", OriginIATA: "LAX", DestIATA: "SFO"},
	}

	res := ResolveFacts(flights, testKeyMaps())
	if res.Examined != len(flights) {
		t.Errorf("Examined = %d, want %d", res.Examined, len(flights))
	}
	if res.Admitted+res.Skipped != res.Examined {
		t.Errorf("Admitted(%d)+Skipped(%d) != Examined(%d)", res.Admitted, res.Skipped, res.Examined)
	}
	if len(res.Rows) != res.Admitted {
		t.Errorf("len(Rows) = %d, want Admitted = %d", len(res.Rows), res.Admitted)
	}
}

func TestResolveFactsCountsAbsentTimesAsDiagnostics(t *testing.T) {
	t.Parallel()

	// A NULL departure time loads as NULL but still counts toward the
	// invalid-time warning, same as blank and malformed strings.
	flights := []FlightRecord{
		{Year: 2023, Month: 3, Day: 5, AirlineIATA: "AA", OriginIATA: "SFO", DestIATA: "JFK", DepartureTimeRaw: nil},
	}

	res := ResolveFacts(flights, testKeyMaps())
	if res.Admitted != 1 {
		t.Fatalf("admitted = %d, want 1", res.Admitted)
	}
	if res.Rows[0].DepartureTime != nil {
		t.Errorf("DepartureTime = %v, want nil", *res.Rows[0].DepartureTime)
	}
	if got := res.TimeDiagnostics.Count(); got != 1 {
		t.Fatalf("TimeDiagnostics.Count() = %d, want 1", got)
	}
	sample := res.TimeDiagnostics.Sample()
	if sample[0].Row != 0 || sample[0].Value != nil {
		t.Errorf("diagnostic = %+v, want row 0 with nil value", sample[0])
	}
}

func TestResolveFactsRecordsTimeDiagnosticsForSkippedRows(t *testing.T) {
	t.Parallel()

	// Unknown airline AND malformed time: the row is skipped, but the time
	// problem still counts toward diagnostics.
	flights := []FlightRecord{
		{Year: 2023, Month: 3, Day: 5, AirlineIATA: "ZZ", OriginIATA: "SFO", DestIATA: "JFK", DepartureTimeRaw: "8:15"},
		{Year: 2023, Month: 3, Day: 5, AirlineIATA: "AA", OriginIATA: "SFO", DestIATA: "JFK", DepartureTimeRaw: "bogus"},
	}

	res := ResolveFacts(flights, testKeyMaps())
	if got := res.TimeDiagnostics.Count(); got != 2 {
		t.Fatalf("TimeDiagnostics.Count() = %d, want 2", got)
	}
	sample := res.TimeDiagnostics.Sample()
	if sample[0].Row != 0 || sample[1].Row != 1 {
		t.Errorf("diagnostic rows = %d,%d, want 0,1", sample[0].Row, sample[1].Row)
	}
	if res.Rows[0].DepartureTime != nil {
		t.Errorf("malformed time should load as null")
	}
}
