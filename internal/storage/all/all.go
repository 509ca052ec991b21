// Package all registers every storage backend with the factory. Binaries
// blank-import it so config alone decides which backend runs.
package all

import (
	_ "flightdw/internal/storage/mssql"
	_ "flightdw/internal/storage/postgres"
	_ "flightdw/internal/storage/sqlite"
)
