// Package stocksource defines the contract the sync engine needs from the
// marketplace and provides the implementations used to run it without one.
package stocksource

import "context"

// StockRecord is the marketplace's view of one SKU.
// Either quantity may be absent.
type StockRecord struct {
	SKU            string `yaml:"sku"`
	ProductName    string `yaml:"name"`
	AvailableStock *int   `yaml:"available,omitempty"`
	TotalStock     *int   `yaml:"total,omitempty"`
}

// Page is one slice of the full marketplace catalog
type Page struct {
	Records []StockRecord
	Next    string
	Done    bool
}

// Source looks up authoritative stock levels.
// FetchBulkStock must accept at least one chunk of SKUs per call; SKUs the
// marketplace does not know are absent from the returned map.
type Source interface {
	FetchBulkStock(ctx context.Context, skus []string) (map[string]StockRecord, error)
	FetchFullCatalog(ctx context.Context, cursor string) (Page, error)
}

// Int returns a pointer to v
func Int(v int) *int {
	return &v
}
