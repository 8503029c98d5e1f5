package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/livinlefevreloca/stocksync/internal/api"
	"github.com/livinlefevreloca/stocksync/internal/cron"
	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/logging"
	"github.com/livinlefevreloca/stocksync/internal/queue"
	"github.com/livinlefevreloca/stocksync/internal/stats"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
)

// Environment variables that override the config file
const (
	EnvDatabaseDriver = "STOCKSYNC_DATABASE_DRIVER"
	EnvDatabaseDSN    = "STOCKSYNC_DATABASE_DSN"
)

// Staging backends
const (
	StagingSQL    = "sql"
	StagingMemory = "memory"
)

// Config represents the application configuration
type Config struct {
	Database db.Config        `toml:"database"`
	Sync     stocksync.Config `toml:"sync"`
	Queue    queue.Config     `toml:"queue"`
	Source   SourceConfig     `toml:"source"`
	Staging  StagingConfig    `toml:"staging"`
	HTTP     api.Config       `toml:"http"`
	Metrics  MetricsConfig    `toml:"metrics"`
	Logging  logging.Config   `toml:"logging"`
	Stats    stats.Config     `toml:"stats"`
	Cron     cron.Config      `toml:"cron"`
}

// SourceConfig locates the marketplace catalog export and throttles reads from it
type SourceConfig struct {
	SnapshotPath  string `toml:"snapshot_path"`
	PageSize      int    `toml:"page_size"`
	RatePerMinute int    `toml:"rate_per_minute"`
	Burst         int    `toml:"burst"`
}

// StagingConfig selects where full-catalog runs stage the fetched catalog
type StagingConfig struct {
	Backend string `toml:"backend"`
}

// MetricsConfig holds the Prometheus listener settings
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	sync := stocksync.DefaultConfig()

	return &Config{
		Database: db.Config{
			Driver:          "sqlite3",
			DSN:             "stocksync.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Sync: sync,
		Queue: queue.Config{
			Queues: []queue.QueueConfig{
				{Name: sync.BatchQueue, Workers: 4, BufferSize: 1000},
				{Name: sync.FullQueue, Workers: 1, BufferSize: 10},
			},
			EnqueueTimeout: 5 * time.Second,
			Retry:          queue.DefaultRetryPolicy(),
		},
		Source: SourceConfig{
			SnapshotPath:  "catalog.yaml",
			PageSize:      stocksource.DefaultPageSize,
			RatePerMinute: 600,
			Burst:         10,
		},
		Staging: StagingConfig{Backend: StagingSQL},
		HTTP:    api.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
		},
		Logging: logging.DefaultConfig(),
		Stats:   stats.DefaultConfig(),
		Cron:    cron.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a TOML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	md, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Environment variables
// 4. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	applyEnv(config)
	return config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv(EnvDatabaseDriver); v != "" {
		config.Database.Driver = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		config.Database.DSN = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver must be specified")
	}
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s (must be sqlite3 or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must be specified")
	}

	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	queues := make(map[string]bool, len(c.Queue.Queues))
	for _, q := range c.Queue.Queues {
		queues[q.Name] = true
	}
	for _, name := range []string{c.Sync.BatchQueue, c.Sync.FullQueue} {
		if !queues[name] {
			return fmt.Errorf("queue: sync queue %q is not configured", name)
		}
	}

	if c.Source.SnapshotPath == "" {
		return fmt.Errorf("source snapshot_path must be specified")
	}
	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source page_size must be positive")
	}
	if c.Source.RatePerMinute < 0 {
		return fmt.Errorf("source rate_per_minute must not be negative")
	}

	if c.Staging.Backend != StagingSQL && c.Staging.Backend != StagingMemory {
		return fmt.Errorf("unsupported staging backend: %s (must be sql or memory)", c.Staging.Backend)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address must be specified when metrics are enabled")
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if err := c.Cron.Validate(); err != nil {
		return fmt.Errorf("cron: %w", err)
	}

	return nil
}
