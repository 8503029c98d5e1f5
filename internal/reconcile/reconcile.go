// Package reconcile decides what a single SKU's stock should become.
// It performs no I/O and behaves identically for chunked and full-catalog runs.
package reconcile

import (
	"fmt"

	"github.com/livinlefevreloca/stocksync/internal/stocksource"
)

// Status is the per-item outcome written to the sync log
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

const (
	MsgNotFoundExternally = "SKU not found in marketplace"
	MsgNoQuantity         = "marketplace returned no stock quantity"
	MsgInSync             = "stock already in sync"
)

// Outcome is the reconciliation result for one SKU.
// NewStock and Change are nil when no authoritative quantity was available.
type Outcome struct {
	Status   Status
	OldStock int
	NewStock *int
	Change   *int
	Message  string
	// Apply is true when the local product must be updated
	Apply bool
}

// Reconcile compares the local stock with the marketplace record.
//
// The authoritative quantity is AvailableStock, falling back to TotalStock
// when the marketplace omits it. Negative quantities are treated as zero.
func Reconcile(oldStock int, ext *stocksource.StockRecord, dryRun bool) Outcome {
	out := Outcome{OldStock: oldStock}

	if ext == nil {
		out.Status = StatusFailed
		out.Message = MsgNotFoundExternally
		return out
	}

	newStock, ok := Authoritative(ext)
	if !ok {
		out.Status = StatusFailed
		out.Message = MsgNoQuantity
		return out
	}

	change := newStock - oldStock
	out.NewStock = &newStock
	out.Change = &change

	if change == 0 {
		out.Status = StatusSkipped
		out.Message = MsgInSync
		return out
	}

	out.Status = StatusSuccess
	out.Apply = !dryRun
	if dryRun {
		out.Message = fmt.Sprintf("would update stock %d -> %d (%+d)", oldStock, newStock, change)
	} else {
		out.Message = fmt.Sprintf("updated stock %d -> %d (%+d)", oldStock, newStock, change)
	}
	return out
}

// Authoritative returns the quantity the marketplace considers sellable
func Authoritative(ext *stocksource.StockRecord) (int, bool) {
	var q *int
	switch {
	case ext.AvailableStock != nil:
		q = ext.AvailableStock
	case ext.TotalStock != nil:
		q = ext.TotalStock
	default:
		return 0, false
	}
	return max(*q, 0), true
}
