package stocksync

import (
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/reconcile"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
)

const msgUpdateFailed = "failed to update local stock"

// reconcileStock is swapped in tests to exercise the panic path
var reconcileStock = reconcile.Reconcile

// planned is an item row and the stock write it records, if any. The write
// is applied in the transaction that commits the row.
type planned struct {
	row    db.SyncLogEntry
	update *db.StockUpdate
}

// plan reconciles one product without touching the database. It never
// fails; a panic becomes a failed row.
func plan(logger *slog.Logger, entries entryBuilder, product db.Product, external map[string]stocksource.StockRecord, dryRun bool) (item planned) {
	oldStock := product.StockQuantity

	defer func() {
		if r := recover(); r != nil {
			err := &ReconciliationError{SKU: product.SKU, Err: fmt.Errorf("panic: %v", r)}
			logger.Error("reconciliation panicked", "sku", product.SKU, "error", err)
			item = planned{row: entries.failed(product.SKU, product.Name, &oldStock, "reconciliation error", err)}
		}
	}()

	var ext *stocksource.StockRecord
	if rec, ok := external[product.SKU]; ok {
		ext = &rec
	}

	out := reconcileStock(oldStock, ext, dryRun)

	name := product.Name
	if ext != nil && ext.ProductName != "" {
		name = ext.ProductName
	}
	item.row = entries.outcome(product.SKU, name, out)
	if out.Apply {
		item.update = &db.StockUpdate{ProductID: product.ID, Stock: *out.NewStock, At: entries.now()}
	}
	return item
}

func stockUpdates(items []planned) []db.StockUpdate {
	var updates []db.StockUpdate
	for _, item := range items {
		if item.update != nil {
			updates = append(updates, *item.update)
		}
	}
	return updates
}

// resolve produces the rows to commit once the stock writes ran. Rows whose
// write was rejected are logged as failed.
func resolve(logger *slog.Logger, items []planned, failed map[int64]error) ([]db.SyncLogEntry, db.CounterDelta) {
	rows := make([]db.SyncLogEntry, 0, len(items)+1)
	var delta db.CounterDelta
	for _, item := range items {
		row := item.row
		if item.update != nil {
			if err, ok := failed[item.update.ProductID]; ok {
				logger.Warn("failed to apply stock update", "sku", row.SKU, "error", err)
				row = updateFailed(row, err)
			}
		}
		count(&delta, row.Status)
		rows = append(rows, row)
	}
	return rows, delta
}

func updateFailed(row db.SyncLogEntry, err error) db.SyncLogEntry {
	detail := (&ReconciliationError{SKU: row.SKU, Err: err}).Error()
	row.NewStock = nil
	row.Change = nil
	row.Status = db.LogFailed
	row.Message = msgUpdateFailed
	row.ErrorDetail = &detail
	return row
}
