package stocksync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/metrics"
)

// LogBuffer accumulates item rows of one session and writes them in groups
// of flushSize, so a run never holds more than flushSize rows in memory.
// Each flush is one transaction holding the group's stock updates, one
// batched insert and one counter increment.
type LogBuffer struct {
	db        *db.DB
	sessionID string
	kind      string
	dryRun    bool
	flushSize int
	logger    *slog.Logger

	items   []planned
	totals  db.CounterDelta
	flushes int
}

// NewLogBuffer creates a buffer for one session
func NewLogBuffer(database *db.DB, sessionID, kind string, dryRun bool, flushSize int, logger *slog.Logger) *LogBuffer {
	return &LogBuffer{
		db:        database,
		sessionID: sessionID,
		kind:      kind,
		dryRun:    dryRun,
		flushSize: flushSize,
		logger:    logger,
		items:     make([]planned, 0, flushSize),
	}
}

// Add buffers an item row with the stock update it records, which may be
// nil, and flushes when the buffer is full
func (b *LogBuffer) Add(ctx context.Context, entry db.SyncLogEntry, update *db.StockUpdate) error {
	b.items = append(b.items, planned{row: entry, update: update})

	if len(b.items) >= b.flushSize {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered rows. total_requested grows with each flush so
// the session's processed count always matches its requested count.
func (b *LogBuffer) Flush(ctx context.Context) error {
	if len(b.items) == 0 {
		return nil
	}

	var delta db.CounterDelta
	err := b.db.CommitLogs(ctx, b.sessionID, stockUpdates(b.items), func(failed map[int64]error) ([]db.SyncLogEntry, db.CounterDelta) {
		rows, d := resolve(b.logger, b.items, failed)
		d.Requested = d.Processed
		delta = d
		return rows, d
	})
	if err != nil {
		return fmt.Errorf("failed to flush %d log rows: %w", len(b.items), err)
	}

	metrics.RecordLogFlush(len(b.items))
	metrics.RecordItems(b.kind, db.LogSuccess, b.dryRun, delta.Successful)
	metrics.RecordItems(b.kind, db.LogSkipped, b.dryRun, delta.Skipped)
	metrics.RecordItems(b.kind, db.LogFailed, b.dryRun, delta.Failed)

	b.totals.Requested += delta.Requested
	b.totals.Processed += delta.Processed
	b.totals.Successful += delta.Successful
	b.totals.Skipped += delta.Skipped
	b.totals.Failed += delta.Failed
	b.flushes++

	b.logger.Debug("flushed log rows",
		"session_id", b.sessionID,
		"rows", len(b.items),
		"flushes", b.flushes)

	b.items = b.items[:0]
	return nil
}

// Len returns the number of rows waiting to be flushed
func (b *LogBuffer) Len() int {
	return len(b.items)
}

// Totals returns the counts of every flushed row
func (b *LogBuffer) Totals() db.CounterDelta {
	return b.totals
}

// Flushes returns how many flushes were written
func (b *LogBuffer) Flushes() int {
	return b.flushes
}
