// Command seed loads the public flight dataset exports into a yearly
// source database, creating the tables the etl binary extracts from.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"flightdw/internal/config"
	"flightdw/internal/seed"
	"flightdw/internal/storage"

	_ "flightdw/internal/storage/all"
)

func main() {
	var (
		kind     string
		dsn      string
		airlines string
		airports string
		flights  string
		format   string
		encoding string
		rowLimit int
		batch    int
		exclude  string
	)
	flag.StringVar(&kind, "kind", "sqlite", "storage backend kind (mssql, sqlite, postgres)")
	flag.StringVar(&dsn, "dsn", "", "source database DSN")
	flag.StringVar(&airlines, "airlines", "airlines.csv", "airlines CSV path")
	flag.StringVar(&airports, "airports", "airports.csv", "airports CSV path")
	flag.StringVar(&flights, "flights", "flights.csv", "flights CSV path")
	flag.StringVar(&format, "format", "csv", "export format (csv, json)")
	flag.StringVar(&encoding, "encoding", "", "CSV encoding (utf-8, latin1, windows-1252)")
	flag.IntVar(&rowLimit, "row-limit", 0, "cap on flight rows (0 = all)")
	flag.IntVar(&batch, "batch-size", 0, "flight insert chunk size (0 = default)")
	flag.StringVar(&exclude, "exclude-rows", "", "flight row index ranges to skip, e.g. 218995-219006,300000-300010")
	flag.Parse()

	if dsn == "" {
		fmt.Fprintln(os.Stderr, "usage: seed -kind sqlite -dsn /path/to/flight_data_2015.db [-airlines ...] [-airports ...] [-flights ...]")
		os.Exit(2)
	}

	excluded, err := parseRowRanges(exclude)
	if err != nil {
		fatalf("parse -exclude-rows: %v", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	ctx := context.Background()

	wh, err := storage.NewWarehouse(ctx, storage.Config{Kind: kind, DSN: dsn})
	if err != nil {
		fatalf("open database: %v", err)
	}
	defer wh.Close()

	airlinesF, err := os.Open(airlines)
	if err != nil {
		fatalf("open airlines: %v", err)
	}
	airportsF, err := os.Open(airports)
	if err != nil {
		fatalf("open airports: %v", err)
	}
	flightsF, err := os.Open(flights)
	if err != nil {
		fatalf("open flights: %v", err)
	}

	var csvOpt config.Options
	if encoding != "" {
		csvOpt = config.Options{"encoding": encoding}
	}

	loader := &seed.Loader{
		WH: wh,
		Opt: seed.Options{
			Format:            format,
			BatchSize:         batch,
			RowLimit:          rowLimit,
			ExcludedRowRanges: excluded,
			CSV:               csvOpt,
			Logger:            logger,
		},
	}

	start := time.Now()
	stats, err := loader.Run(ctx, airlinesF, airportsF, flightsF)
	if err != nil {
		fatalf("seed: %v", err)
	}

	fmt.Printf("seeded %d airlines, %d airports, %d flights (%d excluded, %d filtered, %d bad rows) in %s\n",
		stats.Airlines, stats.Airports, stats.FlightsInserted,
		stats.FlightsExcluded, stats.FlightsFiltered, stats.BadRows,
		time.Since(start).Truncate(time.Millisecond))
}

// parseRowRanges parses "start-end[,start-end...]" into row ranges.
func parseRowRanges(s string) ([]seed.RowRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []seed.RowRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("range %q must look like start-end", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", part, err)
		}
		if end < start {
			return nil, fmt.Errorf("range %q: end before start", part)
		}
		out = append(out, seed.RowRange{Start: start, End: end})
	}
	return out, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
