package stocksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/metrics"
	"github.com/livinlefevreloca/stocksync/internal/queue"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
)

// finalizeTimeout bounds writes made after the job context ended
const finalizeTimeout = 30 * time.Second

// BatchWorker reconciles one chunk of a dispatched session
type BatchWorker struct {
	db     *db.DB
	source stocksource.Source
	logger *slog.Logger
	now    func() time.Time
}

// NewBatchWorker creates a batch worker
func NewBatchWorker(database *db.DB, source stocksource.Source, logger *slog.Logger) *BatchWorker {
	return &BatchWorker{
		db:     database,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Handle is the queue handler for stock.batch jobs
func (w *BatchWorker) Handle(ctx context.Context, job queue.Job) error {
	var p BatchPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	return w.Run(ctx, p, job.Attempt)
}

// HandleExhausted is the queue exhausted hook for stock.batch jobs
func (w *BatchWorker) HandleExhausted(ctx context.Context, job queue.Job, lastErr error) {
	var p BatchPayload
	if err := job.Decode(&p); err != nil {
		w.logger.Error("cannot record exhausted batch", "job_id", job.ID, "error", err)
		return
	}
	if err := w.Exhaust(ctx, p, job.Attempt, lastErr); err != nil {
		w.logger.Error("session failed", "session_id", p.SessionID, "error", err)
	}
}

// Run processes one chunk. It is safe to run more than once for the same
// chunk: a chunk whose marker is already committed is skipped, and a racing
// execution that loses the marker insert discards its rows.
//
// Returned errors other than queue.Permanent ones are worth retrying; nothing
// has been logged and no stock written for the chunk when they are returned.
func (w *BatchWorker) Run(ctx context.Context, p BatchPayload, attempt int) error {
	logger := w.logger.With(
		"session_id", p.SessionID,
		"batch_index", p.BatchIndex,
		"total_batches", p.TotalBatches)

	done, err := w.db.BatchExists(ctx, p.SessionID, p.BatchIndex)
	if err != nil {
		return fmt.Errorf("failed to check batch marker: %w", err)
	}
	if done {
		logger.Info("batch already finalized, skipping re-execution")
		return nil
	}

	if _, err := w.db.MarkSessionStarted(ctx, p.SessionID, w.now()); err != nil {
		return fmt.Errorf("failed to mark session started: %w", err)
	}

	local, err := w.db.FindProductsBySKU(ctx, p.SKUs)
	if err != nil {
		if ctx.Err() != nil {
			return w.cancel(ctx, logger, p, attempt, nil, 0)
		}
		return fmt.Errorf("failed to look up local products: %w", err)
	}

	entries := w.builder(p)
	items := make([]planned, 0, len(p.SKUs))
	valid := make([]string, 0, len(p.SKUs))
	for _, sku := range p.SKUs {
		if _, ok := local[sku]; !ok {
			items = append(items, planned{row: entries.failed(sku, "", nil, ErrSkuNotFoundLocally.Error(), nil)})
			continue
		}
		valid = append(valid, sku)
	}

	var external map[string]stocksource.StockRecord
	if len(valid) > 0 {
		external, err = w.source.FetchBulkStock(ctx, valid)
		if err != nil {
			if ctx.Err() != nil {
				return w.cancel(ctx, logger, p, attempt, items, 0)
			}
			return &ExternalServiceError{Op: "bulk lookup", Err: err}
		}
	}

	for i, sku := range valid {
		if ctx.Err() != nil {
			return w.cancel(ctx, logger, p, attempt, items, i)
		}
		items = append(items, plan(logger, entries, local[sku], external, p.DryRun))
	}

	return w.finalize(ctx, logger, p, attempt, db.BatchCompleted, items)
}

// cancel records SKUs from valid[processed:] as not processed, commits the
// partial batch and fails the session
func (w *BatchWorker) cancel(ctx context.Context, logger *slog.Logger, p BatchPayload, attempt int, items []planned, processed int) error {
	cause := ctx.Err()
	entries := w.builder(p)

	logged := make(map[string]bool, len(items))
	for _, item := range items {
		logged[item.row.SKU] = true
	}
	for _, sku := range p.SKUs {
		if !logged[sku] {
			items = append(items, planned{row: entries.failed(sku, "", nil, msgCancelled, cause)})
		}
	}

	detached, stop := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer stop()

	logger.Warn("batch cancelled, recording partial results",
		"processed", processed,
		"remaining", len(p.SKUs)-len(logged),
		"error", cause)

	msg := fmt.Sprintf("batch %d/%d cancelled: %v", p.BatchIndex+1, p.TotalBatches, cause)
	if failed, err := w.db.FinishSession(detached, p.SessionID, db.SessionFailed, &msg, attempt, w.now()); err != nil {
		logger.Error("failed to mark session failed", "error", err)
	} else if failed {
		metrics.RecordSession(db.SessionKindBatch, db.SessionFailed)
	}

	if err := w.finalize(detached, logger, p, attempt, db.BatchCancelled, items); err != nil {
		logger.Error("failed to record cancelled batch", "error", err)
	}
	return queue.Permanent(fmt.Errorf("batch %d cancelled: %w", p.BatchIndex, cause))
}

// Exhaust records every SKU of a chunk whose retries ran out as failed and
// fails the session.
func (w *BatchWorker) Exhaust(ctx context.Context, p BatchPayload, attempts int, lastErr error) error {
	logger := w.logger.With("session_id", p.SessionID, "batch_index", p.BatchIndex)

	msg := fmt.Sprintf("batch %d/%d: %v", p.BatchIndex+1, p.TotalBatches, lastErr)
	failed, err := w.db.FinishSession(ctx, p.SessionID, db.SessionFailed, &msg, attempts, w.now())
	if err != nil {
		return fmt.Errorf("failed to mark session failed: %w", err)
	}
	if failed {
		metrics.RecordSession(db.SessionKindBatch, db.SessionFailed)
	}

	entries := w.builder(p)
	items := make([]planned, 0, len(p.SKUs))
	detail := fmt.Sprintf("stock source unavailable after %d attempts", attempts)
	for _, sku := range p.SKUs {
		items = append(items, planned{row: entries.failed(sku, "", nil, detail, lastErr)})
	}
	if err := w.finalize(ctx, logger, p, attempts, db.BatchExhausted, items); err != nil {
		return fmt.Errorf("failed to record exhausted batch: %w", err)
	}

	return &UltimateFailure{SessionID: p.SessionID, Attempts: attempts, Err: lastErr}
}

// finalize commits the marker, stock updates, rows, summary and counters in
// one transaction
func (w *BatchWorker) finalize(ctx context.Context, logger *slog.Logger, p BatchPayload, attempt int, status string, items []planned) error {
	batch := db.SyncBatch{
		SessionID:   p.SessionID,
		BatchIndex:  p.BatchIndex,
		Status:      status,
		Attempts:    attempt,
		CompletedAt: w.now(),
	}

	var delta db.CounterDelta
	written := 0
	build := func(failed map[int64]error) ([]db.SyncLogEntry, db.CounterDelta) {
		rows, d := resolve(logger, items, failed)
		d.Batches = 1
		rows = append(rows, w.builder(p).summary(summaryStatus(d), fmt.Sprintf(
			"batch %d/%d %s: %d processed, %d success, %d skipped, %d failed",
			p.BatchIndex+1, p.TotalBatches, status,
			d.Processed, d.Successful, d.Skipped, d.Failed), nil))
		delta, written = d, len(rows)
		return rows, d
	}

	sessionDone, err := w.db.FinalizeBatch(ctx, batch, stockUpdates(items), build)
	if errors.Is(err, db.ErrDuplicate) {
		logger.Info("batch finalized by another execution, discarding results")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}

	metrics.RecordLogFlush(written)
	metrics.RecordItems(db.SessionKindBatch, db.LogSuccess, p.DryRun, delta.Successful)
	metrics.RecordItems(db.SessionKindBatch, db.LogSkipped, p.DryRun, delta.Skipped)
	metrics.RecordItems(db.SessionKindBatch, db.LogFailed, p.DryRun, delta.Failed)

	logger.Info("batch finalized",
		"status", status,
		"processed", delta.Processed,
		"successful", delta.Successful,
		"skipped", delta.Skipped,
		"failed", delta.Failed)

	if sessionDone {
		metrics.RecordSession(db.SessionKindBatch, db.SessionCompleted)
		logger.Info("session completed")
	}
	return nil
}

func (w *BatchWorker) builder(p BatchPayload) entryBuilder {
	index := p.BatchIndex
	return entryBuilder{sessionID: p.SessionID, batchIndex: &index, dryRun: p.DryRun, now: w.now}
}

// summaryStatus is failed when every item failed, success otherwise
func summaryStatus(delta db.CounterDelta) string {
	if delta.Processed > 0 && delta.Failed == delta.Processed {
		return db.LogFailed
	}
	return db.LogSuccess
}
