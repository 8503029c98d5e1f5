package stats

import (
	"fmt"
	"time"
)

// Config defines the defaults of the stats aggregator
type Config struct {
	// DefaultWindow is used when a request does not name a window
	DefaultWindow time.Duration `toml:"default_window"`
	// TopLimit bounds the failing SKU and largest delta lists
	TopLimit int `toml:"top_limit"`
}

// DefaultConfig returns default stats configuration
func DefaultConfig() Config {
	return Config{
		DefaultWindow: 24 * time.Hour,
		TopLimit:      10,
	}
}

// Validate checks the stats configuration
func (c Config) Validate() error {
	if c.DefaultWindow <= 0 {
		return fmt.Errorf("default_window must be positive, got %v", c.DefaultWindow)
	}
	if c.TopLimit <= 0 {
		return fmt.Errorf("top_limit must be positive, got %d", c.TopLimit)
	}
	return nil
}
