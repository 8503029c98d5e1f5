package db

import (
	"context"
	"strings"
	"time"
)

const productColumns = `id, sku, name, stock_quantity, last_sync_status, last_sync_at`

// FindProductsBySKU returns the local products matching skus, keyed by SKU.
// SKUs absent from the catalog are simply missing from the result.
func (db *DB) FindProductsBySKU(ctx context.Context, skus []string) (map[string]Product, error) {
	found := make(map[string]Product, len(skus))

	for start := 0; start < len(skus); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(skus))
		chunk := skus[start:end]

		args := make([]any, len(chunk))
		for i, sku := range chunk {
			args[i] = sku
		}

		query := `SELECT ` + productColumns + ` FROM products WHERE sku IN ` + placeholders(len(chunk))
		rows, err := db.query(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		products, err := scanProducts(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			found[p.SKU] = p
		}
	}

	return found, nil
}

// ListProductsAfter returns up to limit products with id > afterID in id order
func (db *DB) ListProductsAfter(ctx context.Context, afterID int64, limit int) ([]Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE id > ?
		ORDER BY id
		LIMIT ?
	`

	rows, err := db.query(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows)
}

const updateStockQuery = `
	UPDATE products
	SET stock_quantity = ?, last_sync_status = ?, last_sync_at = ?
	WHERE id = ?
`

// StockUpdate is a reconciled stock quantity waiting to be written
type StockUpdate struct {
	ProductID int64
	Stock     int
	At        time.Time
}

// UpdateProductStock writes a reconciled stock quantity and marks the product synced
func (db *DB) UpdateProductStock(ctx context.Context, id int64, stock int, at time.Time) error {
	result, err := db.exec(ctx, updateStockQuery, stock, ProductSynced, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ApplyStockUpdates writes each update under its own savepoint, so one
// rejected product does not abort the transaction. Rejected updates are
// rolled back and returned keyed by product id; the error is reserved for
// failures of the transaction itself.
func (tx *Tx) ApplyStockUpdates(ctx context.Context, updates []StockUpdate) (map[int64]error, error) {
	failed := make(map[int64]error)
	for _, u := range updates {
		if _, err := tx.exec(ctx, "SAVEPOINT stock_update"); err != nil {
			return nil, err
		}

		result, err := tx.exec(ctx, updateStockQuery, u.Stock, ProductSynced, u.At.UTC(), u.ProductID)
		if err == nil {
			err = requireRow(result)
		}
		if err != nil {
			if _, rerr := tx.exec(ctx, "ROLLBACK TO SAVEPOINT stock_update"); rerr != nil {
				return nil, rerr
			}
			failed[u.ProductID] = err
		}

		if _, err := tx.exec(ctx, "RELEASE SAVEPOINT stock_update"); err != nil {
			return nil, err
		}
	}
	return failed, nil
}

// UpsertProduct creates or replaces a product by id. The storefront owns this
// table; the sync engine only uses this for imports and fixtures.
func (db *DB) UpsertProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			sku = excluded.sku,
			name = excluded.name,
			stock_quantity = excluded.stock_quantity
	`

	_, err := db.exec(ctx, query, p.ID, strings.TrimSpace(p.SKU), p.Name, p.StockQuantity, p.LastSyncStatus, p.LastSyncAt)
	if IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetProductBySKU retrieves a single product
func (db *DB) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	found, err := db.FindProductsBySKU(ctx, []string{sku})
	if err != nil {
		return nil, err
	}
	p, ok := found[sku]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanProducts(rows rowsScanner) ([]Product, error) {
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(
			&p.ID,
			&p.SKU,
			&p.Name,
			&p.StockQuantity,
			&p.LastSyncStatus,
			&p.LastSyncAt,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
