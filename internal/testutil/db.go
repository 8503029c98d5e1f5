package testutil

import (
	"context"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/tools/migrator"
)

// NewDB opens an in-memory SQLite database with the schema applied.
// It is closed when the test ends.
func NewDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrator.RunMigrations(database.DB, database.Driver(), db.Migrations, db.MigrationsDir); err != nil {
		database.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() { database.Close() })
	return database
}

// SeedProducts inserts one product per SKU, in order, with ids starting at 1
func SeedProducts(t *testing.T, database *db.DB, skus []string, stock map[string]int) {
	t.Helper()

	for i, sku := range skus {
		p := &db.Product{
			ID:            int64(i + 1),
			SKU:           sku,
			Name:          "Product " + sku,
			StockQuantity: stock[sku],
		}
		if err := database.UpsertProduct(context.Background(), p); err != nil {
			t.Fatalf("failed to seed product %s: %v", sku, err)
		}
	}
}

// SKUs returns n SKUs named prefix-0001, prefix-0002, ...
func SKUs(prefix string, n int) []string {
	skus := make([]string, n)
	for i := range skus {
		skus[i] = fmt.Sprintf("%s-%04d", prefix, i+1)
	}
	return skus
}

// Stock returns the current stock of every SKU
func Stock(t *testing.T, database *db.DB, skus ...string) map[string]int {
	t.Helper()

	found, err := database.FindProductsBySKU(context.Background(), skus)
	if err != nil {
		t.Fatalf("failed to read stock: %v", err)
	}
	stock := make(map[string]int, len(found))
	for sku, p := range found {
		stock[sku] = p.StockQuantity
	}
	return stock
}
