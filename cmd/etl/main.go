// Command etl runs the flight warehouse pipeline: it bootstraps the target
// star schema, then extracts, transforms and loads every configured year.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"flightdw/internal/config"
	"flightdw/internal/metrics"
	"flightdw/internal/metrics/datadog"
	"flightdw/internal/storage"
	"flightdw/internal/warehouse"

	// register all storage backends with the factory; config decides which runs.
	_ "flightdw/internal/storage/all"
)

func main() {
	var (
		cfgPath  string
		validate bool
	)
	flag.StringVar(&cfgPath, "config", "", "run config JSON path")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	if cfgPath == "" {
		fmt.Fprintln(os.Stderr, "usage: etl -config path/to/run.json")
		os.Exit(2)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	ctx := context.Background()

	mx := setupMetrics(ctx, cfg, logger)
	defer func() {
		if err := mx.Close(); err != nil {
			logger.Printf("metrics: close/flush error: %v", err)
		}
	}()

	if err := run(ctx, cfg, logger, mx, *verbose); err != nil {
		logger.Printf("run failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger, mx metrics.Backend, verbose bool) error {
	start := time.Now()

	// Destructive reset and first-run database creation go through the
	// admin connection; sqlite needs neither.
	if cfg.Warehouse.AdminDSN != "" {
		admin, err := storage.NewWarehouse(ctx, storage.Config{Kind: cfg.Warehouse.Kind, DSN: cfg.Warehouse.AdminDSN})
		if err != nil {
			return fmt.Errorf("open admin connection: %w", err)
		}
		err = warehouse.ResetTarget(ctx, admin, cfg.Warehouse.Database, cfg.DropTarget, logger)
		admin.Close()
		if err != nil {
			return fmt.Errorf("reset target: %w", err)
		}
	} else if cfg.DropTarget && cfg.Warehouse.Kind == "sqlite" {
		if err := os.Remove(cfg.Warehouse.DSN); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("reset target: %w", err)
		}
		logger.Printf("stage=drop_database database=%s", cfg.Warehouse.DSN)
	}

	wh, err := storage.NewWarehouse(ctx, storage.Config{Kind: cfg.Warehouse.Kind, DSN: cfg.Warehouse.DSN})
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	defer wh.Close()

	boot := &warehouse.Bootstrapper{WH: wh, Logger: logger}
	if err := boot.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}

	driver := &warehouse.Driver{
		WH: wh,
		OpenSource: func(ctx context.Context, year int) (storage.Source, error) {
			return storage.NewSource(ctx, storage.Config{Kind: cfg.Source.Kind, DSN: cfg.Source.DSNFor(year)})
		},
		BatchSize: cfg.BatchSize,
		RowLimit:  cfg.RowLimit,
		Logger:    logger,
		Metrics:   mx,
	}

	summary, err := driver.Run(ctx, cfg.Years)
	if err != nil {
		return err
	}

	if verbose {
		for _, p := range summary.Periods {
			logger.Printf("year=%d state=%s extracted=%d dropped=%d inserted=%d skipped=%d invalid_times=%d",
				p.Year, p.State, p.Extracted, p.Dropped, p.Inserted, p.Skipped, p.InvalidTimes)
		}
	}
	fmt.Printf("loaded %d fact rows (%d skipped) across %d years in %s; warehouse total=%d\n",
		summary.TotalInserted, summary.TotalSkipped, len(summary.Periods),
		time.Since(start).Truncate(time.Millisecond), summary.FactCount)

	if len(summary.FailedYears) > 0 {
		return fmt.Errorf("%d year(s) failed: %v", len(summary.FailedYears), summary.FailedYears)
	}
	return nil
}

func setupMetrics(ctx context.Context, cfg config.Config, logger *log.Logger) metrics.Backend {
	mc := cfg.Metrics
	if mc == nil || mc.Backend == "" || mc.Backend == "none" {
		return metrics.Noop{}
	}

	switch mc.Backend {
	case "datadog":
		job := mc.Job
		if job == "" {
			job = "flightdw"
		}
		tags := mc.Tags
		if env := os.Getenv("METRICS_TAGS"); env != "" {
			tags = append(tags, datadog.ParseTagsCSV(env)...)
		}
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    job,
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return metrics.Noop{}
		}
		logger.Printf("metrics: backend=datadog job=%s tags=%v", job, tags)
		return b
	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", mc.Backend)
		return metrics.Noop{}
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
