package stocksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/metrics"
	"github.com/livinlefevreloca/stocksync/internal/queue"
	"github.com/livinlefevreloca/stocksync/internal/staging"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
)

// LaunchResult describes an accepted full-catalog request
type LaunchResult struct {
	SessionID string `json:"session_id"`
	DryRun    bool   `json:"dry_run"`
}

// FullCatalogJob reconciles the whole local catalog against a staged copy of
// the marketplace catalog
type FullCatalogJob struct {
	db     *db.DB
	source stocksource.Source
	cache  staging.Cache
	queue  queue.Enqueuer
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewFullCatalogJob creates the full-catalog job
func NewFullCatalogJob(database *db.DB, source stocksource.Source, cache staging.Cache, enqueuer queue.Enqueuer, config Config, logger *slog.Logger) *FullCatalogJob {
	return &FullCatalogJob{
		db:     database,
		source: source,
		cache:  cache,
		queue:  enqueuer,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Launch creates a pending full session and enqueues its job
func (j *FullCatalogJob) Launch(ctx context.Context, dryRun bool) (*LaunchResult, error) {
	result := &LaunchResult{SessionID: uuid.NewString(), DryRun: dryRun}

	session := &db.SyncSession{
		ID:        result.SessionID,
		Kind:      db.SessionKindFull,
		DryRun:    dryRun,
		Status:    db.SessionPending,
		CreatedAt: j.now().UTC(),
	}
	if err := j.db.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	job, err := queue.NewJob(JobTypeFull, j.config.FullQueue, FullPayload{
		SessionID: result.SessionID,
		DryRun:    dryRun,
	}, j.config.FullTimeout)
	if err == nil {
		err = j.queue.Enqueue(ctx, job)
	}
	if err != nil {
		msg := fmt.Sprintf("enqueue full sync: %v", err)
		if _, ferr := j.db.FinishSession(context.WithoutCancel(ctx), result.SessionID, db.SessionFailed, &msg, 0, j.now()); ferr != nil {
			j.logger.Error("failed to mark session failed", "session_id", result.SessionID, "error", ferr)
		}
		return nil, fmt.Errorf("failed to enqueue full sync: %w", err)
	}

	j.logger.Info("full sync launched", "session_id", result.SessionID, "dry_run", dryRun)
	return result, nil
}

// Handle is the queue handler for stock.full jobs
func (j *FullCatalogJob) Handle(ctx context.Context, job queue.Job) error {
	var p FullPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	return j.Run(ctx, p, job.Attempt)
}

// HandleExhausted is the queue exhausted hook for stock.full jobs
func (j *FullCatalogJob) HandleExhausted(ctx context.Context, job queue.Job, lastErr error) {
	var p FullPayload
	if err := job.Decode(&p); err != nil {
		j.logger.Error("cannot record exhausted full sync", "job_id", job.ID, "error", err)
		return
	}
	if err := j.Exhaust(ctx, p, job.Attempt, lastErr); err != nil {
		j.logger.Error("session failed", "session_id", p.SessionID, "error", err)
	}
}

// Run executes one attempt of a full-catalog sync.
//
// Errors while fetching the marketplace catalog are returned for retry; the
// staging scope is deleted either way. Once streaming has started, rows are
// being committed, so any failure flushes what was collected, fails the
// session and is returned as permanent. A delivery that finds rows committed
// by an earlier one fails the session as interrupted.
func (j *FullCatalogJob) Run(ctx context.Context, p FullPayload, attempt int) error {
	logger := j.logger.With("session_id", p.SessionID)

	session, err := j.db.GetSession(ctx, p.SessionID)
	if err != nil {
		if db.IsNotFound(err) {
			return queue.Permanent(fmt.Errorf("session %s: %w", p.SessionID, err))
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session.Terminal() {
		logger.Info("session already finished, skipping full sync", "status", session.Status)
		return nil
	}
	if session.Status == db.SessionStarted {
		logged, err := j.db.CountItemLogs(ctx, p.SessionID)
		if err != nil {
			return fmt.Errorf("failed to count logged items: %w", err)
		}
		if logged > 0 {
			return j.interrupt(ctx, logger, p, attempt, session, logged)
		}
	}

	if _, err := j.db.MarkSessionStarted(ctx, p.SessionID, j.now()); err != nil {
		return fmt.Errorf("failed to mark session started: %w", err)
	}

	defer func() {
		cleanup, stop := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer stop()
		if err := j.cache.Delete(cleanup, p.SessionID); err != nil {
			logger.Error("failed to delete staged catalog", "error", err)
			return
		}
		logger.Debug("staged catalog deleted")
	}()

	if err := j.cache.Create(ctx, p.SessionID); err != nil {
		return fmt.Errorf("failed to create staging scope: %w", err)
	}

	staged, err := j.stage(ctx, p.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return j.fail(ctx, logger, p, attempt, nil, err)
		}
		return err
	}
	logger.Info("marketplace catalog staged", "records", staged)

	buffer := NewLogBuffer(j.db, p.SessionID, db.SessionKindFull, p.DryRun, j.config.FlushSize, logger)
	if err := j.stream(ctx, logger, p, buffer); err != nil {
		return j.fail(ctx, logger, p, attempt, buffer, err)
	}
	if err := buffer.Flush(ctx); err != nil {
		return j.fail(ctx, logger, p, attempt, buffer, err)
	}

	totals := buffer.Totals()
	entries := entryBuilder{sessionID: p.SessionID, dryRun: p.DryRun, now: j.now}
	summary := entries.summary(db.LogSuccess, fmt.Sprintf(
		"full sync completed: %d staged, %d processed, %d success, %d skipped, %d failed",
		staged, totals.Processed, totals.Successful, totals.Skipped, totals.Failed), nil)
	if err := j.db.InsertLogs(ctx, []db.SyncLogEntry{summary}); err != nil {
		return j.fail(ctx, logger, p, attempt, buffer, err)
	}

	if _, err := j.db.FinishSession(ctx, p.SessionID, db.SessionCompleted, nil, attempt, j.now()); err != nil {
		return j.fail(ctx, logger, p, attempt, buffer, err)
	}
	metrics.RecordSession(db.SessionKindFull, db.SessionCompleted)

	logger.Info("full sync completed",
		"processed", totals.Processed,
		"successful", totals.Successful,
		"skipped", totals.Skipped,
		"failed", totals.Failed,
		"flushes", buffer.Flushes())
	return nil
}

// stage pages the marketplace catalog into the staging scope
func (j *FullCatalogJob) stage(ctx context.Context, sessionID string) (int, error) {
	staged := 0
	cursor := ""
	for {
		page, err := j.source.FetchFullCatalog(ctx, cursor)
		if err != nil {
			return staged, &ExternalServiceError{Op: "catalog page", Err: err}
		}

		if len(page.Records) > 0 {
			if err := j.cache.Put(ctx, sessionID, page.Records); err != nil {
				return staged, fmt.Errorf("failed to stage catalog page: %w", err)
			}
			staged += len(page.Records)
		}

		if page.Done {
			return staged, nil
		}
		if page.Next == cursor {
			return staged, &ExternalServiceError{Op: "catalog page", Err: fmt.Errorf("cursor %q did not advance", cursor)}
		}
		cursor = page.Next
	}
}

// stream walks local products in id order, one flush-sized page at a time
func (j *FullCatalogJob) stream(ctx context.Context, logger *slog.Logger, p FullPayload, buffer *LogBuffer) error {
	entries := entryBuilder{sessionID: p.SessionID, dryRun: p.DryRun, now: j.now}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		products, err := j.db.ListProductsAfter(ctx, afterID, j.config.FlushSize)
		if err != nil {
			return fmt.Errorf("failed to read local catalog: %w", err)
		}
		if len(products) == 0 {
			return nil
		}

		skus := make([]string, len(products))
		for i, product := range products {
			skus[i] = product.SKU
		}
		external, err := j.cache.Lookup(ctx, p.SessionID, skus)
		if err != nil {
			return fmt.Errorf("failed to read staged catalog: %w", err)
		}

		for _, product := range products {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := plan(logger, entries, product, external, p.DryRun)
			if err := buffer.Add(ctx, item.row, item.update); err != nil {
				return err
			}
		}

		afterID = products[len(products)-1].ID
	}
}

// fail flushes what was collected, writes a failure summary and fails the session
func (j *FullCatalogJob) fail(ctx context.Context, logger *slog.Logger, p FullPayload, attempt int, buffer *LogBuffer, cause error) error {
	detached, stop := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer stop()

	var totals db.CounterDelta
	if buffer != nil {
		if err := buffer.Flush(detached); err != nil {
			logger.Error("failed to flush partial logs", "error", err, "rows", buffer.Len())
		}
		totals = buffer.Totals()
	}

	status := "failed"
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		status = "cancelled"
	}
	return j.finishFailed(detached, logger, p, attempt, status, totals, cause)
}

// interrupt fails a started session whose earlier delivery already committed
// item rows. Streaming again would log those products twice.
func (j *FullCatalogJob) interrupt(ctx context.Context, logger *slog.Logger, p FullPayload, attempt int, session *db.SyncSession, logged int) error {
	detached, stop := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer stop()

	if err := j.cache.Delete(detached, p.SessionID); err != nil {
		logger.Error("failed to delete staged catalog", "error", err)
	}

	totals := db.CounterDelta{
		Processed:  session.ItemsProcessed,
		Successful: session.ItemsSuccessful,
		Skipped:    session.ItemsSkipped,
		Failed:     session.ItemsFailed,
	}
	cause := fmt.Errorf("%w: %d items logged by an earlier delivery", ErrSyncInterrupted, logged)
	return j.finishFailed(detached, logger, p, attempt, "interrupted", totals, cause)
}

func (j *FullCatalogJob) finishFailed(ctx context.Context, logger *slog.Logger, p FullPayload, attempt int, status string, totals db.CounterDelta, cause error) error {
	entries := entryBuilder{sessionID: p.SessionID, dryRun: p.DryRun, now: j.now}
	summary := entries.summary(db.LogFailed, fmt.Sprintf(
		"full sync %s after %d processed: %d success, %d skipped, %d failed",
		status, totals.Processed, totals.Successful, totals.Skipped, totals.Failed), cause)
	if err := j.db.InsertLogs(ctx, []db.SyncLogEntry{summary}); err != nil {
		logger.Error("failed to write failure summary", "error", err)
	}

	msg := fmt.Sprintf("full sync %s: %v", status, cause)
	if failed, err := j.db.FinishSession(ctx, p.SessionID, db.SessionFailed, &msg, attempt, j.now()); err != nil {
		logger.Error("failed to mark session failed", "error", err)
	} else if failed {
		metrics.RecordSession(db.SessionKindFull, db.SessionFailed)
	}

	logger.Error("full sync failed", "status", status, "processed", totals.Processed, "error", cause)
	return queue.Permanent(fmt.Errorf("full sync %s: %w", status, cause))
}

// Exhaust fails a session whose catalog fetch never succeeded
func (j *FullCatalogJob) Exhaust(ctx context.Context, p FullPayload, attempts int, lastErr error) error {
	entries := entryBuilder{sessionID: p.SessionID, dryRun: p.DryRun, now: j.now}
	summary := entries.summary(db.LogFailed,
		fmt.Sprintf("full sync gave up after %d attempts", attempts), lastErr)
	if err := j.db.InsertLogs(ctx, []db.SyncLogEntry{summary}); err != nil {
		j.logger.Error("failed to write failure summary", "session_id", p.SessionID, "error", err)
	}

	msg := lastErr.Error()
	failed, err := j.db.FinishSession(ctx, p.SessionID, db.SessionFailed, &msg, attempts, j.now())
	if err != nil {
		return fmt.Errorf("failed to mark session failed: %w", err)
	}
	if failed {
		metrics.RecordSession(db.SessionKindFull, db.SessionFailed)
	}
	return &UltimateFailure{SessionID: p.SessionID, Attempts: attempts, Err: lastErr}
}
