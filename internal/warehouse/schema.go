package warehouse

import "flightdw/internal/storage"

// WarehouseTables returns the star schema: three dimensions and one fact
// table. Order matters; fact FKs reference the dimensions, so dimensions are
// created first.
func WarehouseTables() []storage.TableSpec {
	return []storage.TableSpec{
		{
			Name: "DimDate",
			Columns: []storage.ColumnSpec{
				{Name: "Year", Type: "int"},
				{Name: "Month", Type: "int"},
				{Name: "Day", Type: "int"},
			},
			PrimaryKey: &storage.PrimaryKeySpec{Name: "DateKey", Type: "int"},
		},
		{
			Name: "DimAirline",
			Columns: []storage.ColumnSpec{
				{Name: "IATA_CODE", Type: "varchar(10)", Unique: true},
				{Name: "Airline", Type: "varchar(100)", Nullable: true},
			},
			PrimaryKey: &storage.PrimaryKeySpec{Name: "AirlineKey", Type: "int", Identity: true},
		},
		{
			Name: "DimAirport",
			Columns: []storage.ColumnSpec{
				{Name: "IATA_CODE", Type: "varchar(10)", Unique: true},
				{Name: "Airport", Type: "varchar(200)", Nullable: true},
				{Name: "City", Type: "varchar(100)", Nullable: true},
				{Name: "State", Type: "varchar(10)", Nullable: true},
			},
			PrimaryKey: &storage.PrimaryKeySpec{Name: "AirportKey", Type: "int", Identity: true},
		},
		{
			Name: "FactFlight",
			Columns: []storage.ColumnSpec{
				{Name: "DateKey", Type: "int", References: "DimDate(DateKey)"},
				{Name: "AirlineKey", Type: "int", References: "DimAirline(AirlineKey)"},
				{Name: "OriginAirportKey", Type: "int", References: "DimAirport(AirportKey)"},
				{Name: "DestAirportKey", Type: "int", References: "DimAirport(AirportKey)"},
				{Name: "Distance", Type: "int", Nullable: true},
				{Name: "ArrivalDelay", Type: "int", Nullable: true},
				{Name: "DepartureDelay", Type: "int", Nullable: true},
				{Name: "CancelledFlag", Type: "bool"},
				{Name: "DepartureTime", Type: "time", Nullable: true},
				{Name: "CancelReason", Type: "varchar(50)", Nullable: true},
			},
			PrimaryKey: &storage.PrimaryKeySpec{Name: "FlightID", Type: "int", Identity: true},
		},
	}
}
