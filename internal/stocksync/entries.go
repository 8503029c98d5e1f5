package stocksync

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/reconcile"
)

const msgCancelled = "sync cancelled before processing"

// entryBuilder stamps log rows of one session
type entryBuilder struct {
	sessionID  string
	batchIndex *int
	dryRun     bool
	now        func() time.Time
}

func (b entryBuilder) base(entryType, sku, name string) db.SyncLogEntry {
	return db.SyncLogEntry{
		ID:          ulid.Make().String(),
		SessionID:   b.sessionID,
		Type:        entryType,
		BatchIndex:  b.batchIndex,
		SKU:         sku,
		ProductName: name,
		DryRun:      b.dryRun,
		CreatedAt:   b.now().UTC(),
	}
}

// outcome turns a reconciliation result into an item row
func (b entryBuilder) outcome(sku, name string, out reconcile.Outcome) db.SyncLogEntry {
	e := b.base(db.LogTypeItem, sku, name)
	old := out.OldStock
	e.OldStock = &old
	e.NewStock = out.NewStock
	e.Change = out.Change
	e.Status = string(out.Status)
	e.Message = out.Message
	return e
}

// failed records an item that could not be reconciled. oldStock may be nil.
func (b entryBuilder) failed(sku, name string, oldStock *int, message string, detail error) db.SyncLogEntry {
	e := b.base(db.LogTypeItem, sku, name)
	e.OldStock = oldStock
	e.Status = db.LogFailed
	e.Message = message
	if detail != nil {
		d := detail.Error()
		e.ErrorDetail = &d
	}
	return e
}

func (b entryBuilder) summary(status, message string, detail error) db.SyncLogEntry {
	e := b.base(db.LogTypeSummary, "", "")
	e.Status = status
	e.Message = message
	if detail != nil {
		d := detail.Error()
		e.ErrorDetail = &d
	}
	return e
}

// count adds one item row of the given status to delta
func count(delta *db.CounterDelta, status string) {
	delta.Processed++
	switch status {
	case db.LogSuccess:
		delta.Successful++
	case db.LogSkipped:
		delta.Skipped++
	default:
		delta.Failed++
	}
}
