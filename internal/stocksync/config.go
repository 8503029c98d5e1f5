package stocksync

import (
	"fmt"
	"time"
)

// Job types and default queue names
const (
	JobTypeBatch = "stock.batch"
	JobTypeFull  = "stock.full"

	DefaultBatchQueue = "stock-batches"
	DefaultFullQueue  = "stock-full"
)

// Config controls how sync work is split and scheduled
type Config struct {
	// ChunkSize is used when a request does not name one
	ChunkSize int `toml:"chunk_size"`
	// MaxChunkSize is the largest SKU set sent to the stock source in one call
	MaxChunkSize int `toml:"max_chunk_size"`
	// FlushSize bounds the log rows a full-catalog run holds in memory
	FlushSize    int           `toml:"flush_size"`
	BatchTimeout time.Duration `toml:"batch_timeout"`
	FullTimeout  time.Duration `toml:"full_timeout"`
	BatchQueue   string        `toml:"batch_queue"`
	FullQueue    string        `toml:"full_queue"`
}

// DefaultConfig returns the sync defaults
func DefaultConfig() Config {
	return Config{
		ChunkSize:    100,
		MaxChunkSize: 1000,
		FlushSize:    500,
		BatchTimeout: 2 * time.Minute,
		FullTimeout:  1 * time.Hour,
		BatchQueue:   DefaultBatchQueue,
		FullQueue:    DefaultFullQueue,
	}
}

// Validate checks the sync configuration
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxChunkSize < c.ChunkSize {
		return fmt.Errorf("max_chunk_size (%d) must be >= chunk_size (%d)", c.MaxChunkSize, c.ChunkSize)
	}
	if c.FlushSize <= 0 {
		return fmt.Errorf("flush_size must be positive, got %d", c.FlushSize)
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("batch_timeout must be positive, got %v", c.BatchTimeout)
	}
	if c.FullTimeout <= 0 {
		return fmt.Errorf("full_timeout must be positive, got %v", c.FullTimeout)
	}
	if c.BatchQueue == "" || c.FullQueue == "" {
		return fmt.Errorf("batch_queue and full_queue must be set")
	}
	if c.BatchQueue == c.FullQueue {
		return fmt.Errorf("batch_queue and full_queue must differ, both are %q", c.BatchQueue)
	}
	return nil
}
