// Package staging holds the external catalog snapshot of one full-catalog run.
//
// Every entry is scoped to a session ID. A run creates its scope, writes the
// fetched catalog once, reads it while streaming the local catalog and deletes
// the scope when it finishes, whatever the outcome.
package staging

import (
	"context"
	"sync"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
)

// Cache is session-scoped storage for a fetched catalog
type Cache interface {
	// Create prepares an empty scope, discarding rows left by a crashed attempt
	Create(ctx context.Context, sessionID string) error
	Put(ctx context.Context, sessionID string, records []stocksource.StockRecord) error
	Lookup(ctx context.Context, sessionID string, skus []string) (map[string]stocksource.StockRecord, error)
	Count(ctx context.Context, sessionID string) (int, error)
	Delete(ctx context.Context, sessionID string) error
}

// SQLCache keeps staged rows in the staging_catalog table
type SQLCache struct {
	db *db.DB
}

// NewSQLCache creates a cache backed by the database
func NewSQLCache(database *db.DB) *SQLCache {
	return &SQLCache{db: database}
}

func (c *SQLCache) Create(ctx context.Context, sessionID string) error {
	_, err := c.db.ClearStaging(ctx, sessionID)
	return err
}

func (c *SQLCache) Put(ctx context.Context, sessionID string, records []stocksource.StockRecord) error {
	rows := make([]db.StagedRecord, len(records))
	for i, r := range records {
		rows[i] = db.StagedRecord{
			SessionID:      sessionID,
			SKU:            r.SKU,
			ProductName:    r.ProductName,
			AvailableStock: r.AvailableStock,
			TotalStock:     r.TotalStock,
		}
	}
	return c.db.PutStaged(ctx, rows)
}

func (c *SQLCache) Lookup(ctx context.Context, sessionID string, skus []string) (map[string]stocksource.StockRecord, error) {
	rows, err := c.db.LookupStaged(ctx, sessionID, skus)
	if err != nil {
		return nil, err
	}

	found := make(map[string]stocksource.StockRecord, len(rows))
	for sku, r := range rows {
		found[sku] = stocksource.StockRecord{
			SKU:            r.SKU,
			ProductName:    r.ProductName,
			AvailableStock: r.AvailableStock,
			TotalStock:     r.TotalStock,
		}
	}
	return found, nil
}

func (c *SQLCache) Count(ctx context.Context, sessionID string) (int, error) {
	return c.db.CountStaged(ctx, sessionID)
}

func (c *SQLCache) Delete(ctx context.Context, sessionID string) error {
	_, err := c.db.ClearStaging(ctx, sessionID)
	return err
}

// MemoryCache keeps staged rows in process memory
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string]map[string]stocksource.StockRecord
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		sessions: make(map[string]map[string]stocksource.StockRecord),
	}
}

func (c *MemoryCache) Create(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = make(map[string]stocksource.StockRecord)
	return nil
}

func (c *MemoryCache) Put(ctx context.Context, sessionID string, records []stocksource.StockRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scope, ok := c.sessions[sessionID]
	if !ok {
		scope = make(map[string]stocksource.StockRecord, len(records))
		c.sessions[sessionID] = scope
	}
	for _, r := range records {
		scope[r.SKU] = r
	}
	return nil
}

func (c *MemoryCache) Lookup(ctx context.Context, sessionID string, skus []string) (map[string]stocksource.StockRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scope := c.sessions[sessionID]
	found := make(map[string]stocksource.StockRecord, len(skus))
	for _, sku := range skus {
		if r, ok := scope[sku]; ok {
			found[sku] = r
		}
	}
	return found, nil
}

func (c *MemoryCache) Count(ctx context.Context, sessionID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions[sessionID]), nil
}

func (c *MemoryCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

// Sessions returns the IDs that currently hold a scope
func (c *MemoryCache) Sessions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	return ids
}
