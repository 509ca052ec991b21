package warehouse

// FlightRecord is one FLIGHT row from a source database, coerced to
// well-typed fields. DepartureTimeRaw stays untyped because source drivers
// disagree on how TIME columns scan (string, []byte, time.Time); it gets
// normalized during fact resolution.
type FlightRecord struct {
	Year  int
	Month int
	Day   int

	AirlineIATA string
	OriginIATA  string
	DestIATA    string

	Distance       *int
	ArrivalDelay   *int
	DepartureDelay *int

	Cancelled        bool
	DepartureTimeRaw any
	CancelReason     *string
}

// AirlineRecord is one AIRLINE row from a source database.
type AirlineRecord struct {
	IATA string
	Name string
}

// AirportRecord is one AIRPORT row from a source database.
type AirportRecord struct {
	IATA  string
	Name  string
	City  string
	State string
}

// DateRow is one DimDate row to be inserted. DateKey is the natural
// primary key.
type DateRow struct {
	DateKey int
	Year    int
	Month   int
	Day     int
}

// AirlineRow is one DimAirline row to be inserted. The surrogate key is
// assigned by the warehouse.
type AirlineRow struct {
	IATA string
	Name string
}

// AirportRow is one DimAirport row to be inserted.
type AirportRow struct {
	IATA  string
	Name  string
	City  string
	State string
}

// FactRow is one fully resolved FactFlight row, ready for bulk insert.
type FactRow struct {
	DateKey        int
	AirlineKey     int64
	OriginKey      int64
	DestKey        int64
	Distance       *int
	ArrivalDelay   *int
	DepartureDelay *int
	Cancelled      bool
	DepartureTime  *string
	CancelReason   *string
}

// DateKey computes the DimDate natural key from calendar components:
// year*10000 + month*100 + day, e.g. (2023, 3, 5) -> 20230305.
func DateKey(year, month, day int) int {
	return year*10000 + month*100 + day
}
