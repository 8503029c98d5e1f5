package api

import (
	"fmt"
	"time"
)

// Config defines the HTTP listener
type Config struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	// MaxSKUs bounds the SKU list of one dispatch request
	MaxSKUs int `toml:"max_skus"`
	// LogLimit is the default and maximum number of rows returned by the logs endpoint
	LogLimit int `toml:"log_limit"`
}

// DefaultConfig returns the HTTP defaults
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxSKUs:         100000,
		LogLimit:        1000,
	}
}

// Validate checks the HTTP configuration
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must be set")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("read_timeout and write_timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", c.ShutdownTimeout)
	}
	if c.MaxSKUs <= 0 {
		return fmt.Errorf("max_skus must be positive, got %d", c.MaxSKUs)
	}
	if c.LogLimit <= 0 {
		return fmt.Errorf("log_limit must be positive, got %d", c.LogLimit)
	}
	return nil
}
