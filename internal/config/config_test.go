package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Database defaults
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected driver sqlite3, got %s", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "stocksync.db" {
		t.Errorf("expected DSN stocksync.db, got %s", cfg.Database.DSN)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected max_open_conns 25, got %d", cfg.Database.MaxOpenConns)
	}

	// Sync defaults
	if cfg.Sync.ChunkSize != 100 {
		t.Errorf("expected chunk_size 100, got %d", cfg.Sync.ChunkSize)
	}
	if cfg.Sync.BatchTimeout != 2*time.Minute {
		t.Errorf("expected batch_timeout 2m, got %v", cfg.Sync.BatchTimeout)
	}

	// Queue defaults
	if len(cfg.Queue.Queues) != 2 {
		t.Fatalf("expected 2 queues, got %d", len(cfg.Queue.Queues))
	}
	if cfg.Queue.Queues[0].Name != "stock-batches" || cfg.Queue.Queues[0].Workers != 4 {
		t.Errorf("unexpected batch queue %+v", cfg.Queue.Queues[0])
	}
	if cfg.Queue.Queues[1].Name != "stock-full" || cfg.Queue.Queues[1].Workers != 1 {
		t.Errorf("unexpected full queue %+v", cfg.Queue.Queues[1])
	}
	if cfg.Queue.Retry.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Queue.Retry.MaxAttempts)
	}

	// Surfaces
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected HTTP addr :8080, got %s", cfg.HTTP.Addr)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != ":9090" {
		t.Errorf("expected metrics on :9090, got %+v", cfg.Metrics)
	}
	if cfg.Staging.Backend != StagingSQL {
		t.Errorf("expected sql staging, got %s", cfg.Staging.Backend)
	}
	if cfg.Cron.Enabled {
		t.Error("expected cron disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "postgres"
dsn = "postgres://localhost/stock"
max_open_conns = 50

[sync]
chunk_size = 250
max_chunk_size = 500
full_timeout = "30m"

[[queue.queues]]
name = "stock-batches"
workers = 8
buffer_size = 200

[[queue.queues]]
name = "stock-full"
workers = 1
buffer_size = 4

[queue.retry]
max_attempts = 5
initial_backoff = "500ms"

[source]
snapshot_path = "/var/lib/stocksync/catalog.yaml"
rate_per_minute = 120

[staging]
backend = "memory"

[http]
addr = "127.0.0.1:9000"

[cron]
enabled = true
schedule = "30 1 * * *"
dry_run = true
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Overridden values
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected driver postgres, got %s", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 50 {
		t.Errorf("expected max_open_conns 50, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Sync.ChunkSize != 250 {
		t.Errorf("expected chunk_size 250, got %d", cfg.Sync.ChunkSize)
	}
	if cfg.Sync.FullTimeout != 30*time.Minute {
		t.Errorf("expected full_timeout 30m, got %v", cfg.Sync.FullTimeout)
	}
	if len(cfg.Queue.Queues) != 2 || cfg.Queue.Queues[0].Workers != 8 {
		t.Errorf("unexpected queues %+v", cfg.Queue.Queues)
	}
	if cfg.Queue.Retry.MaxAttempts != 5 || cfg.Queue.Retry.InitialBackoff != 500*time.Millisecond {
		t.Errorf("unexpected retry policy %+v", cfg.Queue.Retry)
	}
	if cfg.Source.RatePerMinute != 120 {
		t.Errorf("expected rate_per_minute 120, got %d", cfg.Source.RatePerMinute)
	}
	if cfg.Staging.Backend != StagingMemory {
		t.Errorf("expected memory staging, got %s", cfg.Staging.Backend)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Errorf("expected addr 127.0.0.1:9000, got %s", cfg.HTTP.Addr)
	}
	if !cfg.Cron.Enabled || cfg.Cron.Schedule != "30 1 * * *" || !cfg.Cron.DryRun {
		t.Errorf("unexpected cron config %+v", cfg.Cron)
	}

	// Defaults still present
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected max_idle_conns default 5, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.Queue.Retry.Multiplier != 2.0 {
		t.Errorf("expected multiplier default 2, got %v", cfg.Queue.Retry.Multiplier)
	}
	if cfg.Source.PageSize != 500 {
		t.Errorf("expected page_size default 500, got %d", cfg.Source.PageSize)
	}
	if cfg.Cron.Timezone != "UTC" {
		t.Errorf("expected timezone default UTC, got %s", cfg.Cron.Timezone)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected loaded config to be valid, got %v", err)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/config.toml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_UnknownKey(t *testing.T) {
	path := writeConfig(t, `
[sync]
chunk_sise = 10
`)

	_, err := LoadFromFile(path)
	if err == nil || !strings.Contains(err.Error(), "chunk_sise") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestLoadFromFile_Malformed(t *testing.T) {
	path := writeConfig(t, `[sync`)

	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected no error for empty config path, got %v", err)
	}

	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("expected default driver, got %s", cfg.Database.Driver)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "sqlite3"
dsn = "from-file.db"
`)
	t.Setenv(EnvDatabaseDriver, "postgres")
	t.Setenv(EnvDatabaseDSN, "postgres://db/stock")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected driver from env, got %s", cfg.Database.Driver)
	}
	if cfg.Database.DSN != "postgres://db/stock" {
		t.Errorf("expected DSN from env, got %s", cfg.Database.DSN)
	}
}

func TestValidate_Success(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty driver", func(c *Config) { c.Database.Driver = "" }, "driver must be specified"},
		{"mysql driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"empty DSN", func(c *Config) { c.Database.DSN = "" }, "DSN must be specified"},
		{"zero chunk size", func(c *Config) { c.Sync.ChunkSize = 0 }, "sync: chunk_size"},
		{"no queues", func(c *Config) { c.Queue.Queues = nil }, "queue: at least one queue"},
		{"missing full queue", func(c *Config) { c.Queue.Queues = c.Queue.Queues[:1] }, `sync queue "stock-full" is not configured`},
		{"bad retry", func(c *Config) { c.Queue.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"no snapshot", func(c *Config) { c.Source.SnapshotPath = "" }, "snapshot_path"},
		{"negative rate", func(c *Config) { c.Source.RatePerMinute = -1 }, "rate_per_minute"},
		{"bad staging", func(c *Config) { c.Staging.Backend = "redis" }, "unsupported staging backend"},
		{"no http addr", func(c *Config) { c.HTTP.Addr = "" }, "http: addr"},
		{"no metrics addr", func(c *Config) { c.Metrics.Address = "" }, "metrics address"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging:"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"zero stats window", func(c *Config) { c.Stats.DefaultWindow = 0 }, "stats: default_window"},
		{"bad cron", func(c *Config) {
			c.Cron.Enabled = true
			c.Cron.Schedule = "every night"
		}, "cron:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_MetricsDisabledNeedsNoAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Address = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}
