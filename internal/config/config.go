// Package config parses the JSON run configuration for the flight
// warehouse ETL.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config is the top-level run configuration.
type Config struct {
	Warehouse Target       `json:"warehouse"`
	Source    SourceConfig `json:"source"`

	// Years lists the yearly source databases to process, in order.
	Years []int `json:"years"`

	// BatchSize is the fact-load chunk size. Defaults to 50000.
	BatchSize int `json:"batch_size"`

	// DropTarget recreates the warehouse database before loading.
	// Destructive; requires Warehouse.AdminDSN.
	DropTarget bool `json:"drop_target"`

	// RowLimit caps FLIGHT rows read per year. 0 means no limit.
	// Intended for smoke runs against full-size sources.
	RowLimit int `json:"row_limit"`

	Metrics *MetricsConfig `json:"metrics,omitempty"`
}

// Target describes the warehouse database.
type Target struct {
	// Kind: "mssql" | "sqlite" | "postgres".
	Kind string `json:"kind"`

	// DSN connects to the warehouse database itself.
	DSN string `json:"dsn"`

	// AdminDSN connects to the server-level admin database (master on SQL
	// Server, postgres on PostgreSQL). Needed only for DropTarget or
	// first-run database creation; sqlite ignores it.
	AdminDSN string `json:"admin_dsn,omitempty"`

	// Database is the warehouse database name, used with AdminDSN.
	Database string `json:"database,omitempty"`
}

// SourceConfig describes how yearly source databases are reached.
type SourceConfig struct {
	// Kind: "mssql" | "sqlite" | "postgres".
	Kind string `json:"kind"`

	// DSNTemplate produces a per-year DSN. The literal "{database}" is
	// replaced by DatabasePrefix + year; environment variables in $VAR or
	// ${VAR} form are expanded.
	DSNTemplate string `json:"dsn_template"`

	// DatabasePrefix defaults to "flight_data_"; year 2015 uses database
	// flight_data_2015.
	DatabasePrefix string `json:"database_prefix"`
}

// MetricsConfig selects a metrics backend.
type MetricsConfig struct {
	// Backend: "datadog" | "" (none).
	Backend string   `json:"backend"`
	Job     string   `json:"job"`
	Tags    []string `json:"tags,omitempty"`
}

// DatabaseName returns the source database name for a year.
func (s SourceConfig) DatabaseName(year int) string {
	return fmt.Sprintf("%s%d", s.DatabasePrefix, year)
}

// DSNFor renders the per-year source DSN.
func (s SourceConfig) DSNFor(year int) string {
	dsn := strings.ReplaceAll(s.DSNTemplate, "{database}", s.DatabaseName(year))
	return os.ExpandEnv(dsn)
}

// Load reads, parses, defaults and validates a config file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse parses and validates raw JSON config bytes.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 50000
	}
	if c.Source.DatabasePrefix == "" {
		c.Source.DatabasePrefix = "flight_data_"
	}
	c.Warehouse.DSN = os.ExpandEnv(c.Warehouse.DSN)
	c.Warehouse.AdminDSN = os.ExpandEnv(c.Warehouse.AdminDSN)
}

func (c *Config) validate() error {
	if c.Warehouse.Kind == "" {
		return fmt.Errorf("config: warehouse.kind is required")
	}
	if c.Warehouse.DSN == "" {
		return fmt.Errorf("config: warehouse.dsn is required")
	}
	if c.Source.Kind == "" {
		return fmt.Errorf("config: source.kind is required")
	}
	if c.Source.DSNTemplate == "" {
		return fmt.Errorf("config: source.dsn_template is required")
	}
	if len(c.Years) == 0 {
		return fmt.Errorf("config: years must list at least one year")
	}
	for _, y := range c.Years {
		if y < 1900 || y > 9999 {
			return fmt.Errorf("config: implausible year %d", y)
		}
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	if c.RowLimit < 0 {
		return fmt.Errorf("config: row_limit must not be negative")
	}
	if c.DropTarget && c.Warehouse.Kind != "sqlite" && c.Warehouse.AdminDSN == "" {
		return fmt.Errorf("config: drop_target requires warehouse.admin_dsn")
	}
	if c.DropTarget && c.Warehouse.Kind != "sqlite" && c.Warehouse.Database == "" {
		return fmt.Errorf("config: drop_target requires warehouse.database")
	}
	return nil
}
