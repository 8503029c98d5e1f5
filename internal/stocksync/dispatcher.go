package stocksync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/queue"
)

// DispatchRequest asks for a set of SKUs to be reconciled
type DispatchRequest struct {
	SKUs      []string
	DryRun    bool
	ChunkSize int
}

// DispatchResult describes an accepted request
type DispatchResult struct {
	SessionID  string `json:"session_id"`
	Requested  int    `json:"requested"`
	Duplicates int    `json:"duplicates"`
	Blank      int    `json:"blank"`
	ChunkSize  int    `json:"chunk_size"`
	Batches    int    `json:"batches"`
	DryRun     bool   `json:"dry_run"`
}

// Dispatcher opens a session for a SKU set and enqueues one job per chunk
type Dispatcher struct {
	db     *db.DB
	queue  queue.Enqueuer
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher
func NewDispatcher(database *db.DB, enqueuer queue.Enqueuer, config Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		db:     database,
		queue:  enqueuer,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Dispatch validates the request, creates a pending session and enqueues its
// chunks. It returns as soon as every chunk is queued.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if req.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, req.ChunkSize)
	}
	if req.ChunkSize > d.config.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d exceeds maximum %d", ErrInvalidConfig, req.ChunkSize, d.config.MaxChunkSize)
	}

	skus, blank, duplicates := Dedupe(req.SKUs)
	if len(skus) == 0 {
		return nil, ErrNoValidInput
	}

	chunks := Chunk(skus, req.ChunkSize)
	result := &DispatchResult{
		SessionID:  uuid.NewString(),
		Requested:  len(skus),
		Duplicates: duplicates,
		Blank:      blank,
		ChunkSize:  req.ChunkSize,
		Batches:    len(chunks),
		DryRun:     req.DryRun,
	}

	now := d.now().UTC()
	session := &db.SyncSession{
		ID:             result.SessionID,
		Kind:           db.SessionKindBatch,
		TotalRequested: len(skus),
		TotalBatches:   len(chunks),
		DryRun:         req.DryRun,
		Status:         db.SessionPending,
		CreatedAt:      now,
	}
	if err := d.db.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger := d.logger.With("session_id", result.SessionID)

	entries := entryBuilder{sessionID: result.SessionID, dryRun: req.DryRun, now: d.now}
	summary := entries.summary(db.LogSuccess, fmt.Sprintf(
		"dispatched %d SKUs in %d batches of up to %d (%d duplicates, %d blank dropped)",
		len(skus), len(chunks), req.ChunkSize, duplicates, blank), nil)
	if err := d.db.InsertLogs(ctx, []db.SyncLogEntry{summary}); err != nil {
		d.fail(ctx, logger, result.SessionID, err)
		return nil, fmt.Errorf("failed to write dispatch summary: %w", err)
	}

	for i, chunk := range chunks {
		job, err := queue.NewJob(JobTypeBatch, d.config.BatchQueue, BatchPayload{
			SessionID:    result.SessionID,
			SKUs:         chunk,
			DryRun:       req.DryRun,
			BatchIndex:   i,
			TotalBatches: len(chunks),
		}, d.config.BatchTimeout)
		if err == nil {
			err = d.queue.Enqueue(ctx, job)
		}
		if err != nil {
			d.fail(ctx, logger, result.SessionID, fmt.Errorf("enqueue batch %d/%d: %w", i+1, len(chunks), err))
			return nil, fmt.Errorf("failed to enqueue batch %d: %w", i, err)
		}
	}

	logger.Info("sync dispatched",
		"skus", len(skus),
		"duplicates", duplicates,
		"batches", len(chunks),
		"chunk_size", req.ChunkSize,
		"dry_run", req.DryRun)

	return result, nil
}

func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, sessionID string, cause error) {
	msg := cause.Error()
	if _, err := d.db.FinishSession(context.WithoutCancel(ctx), sessionID, db.SessionFailed, &msg, 0, d.now()); err != nil {
		logger.Error("failed to mark session failed", "error", err)
	}
	logger.Error("dispatch failed", "error", cause)
}

// Dedupe trims SKUs, drops blanks and keeps the first occurrence of each SKU
func Dedupe(skus []string) (unique []string, blank, duplicates int) {
	seen := make(map[string]struct{}, len(skus))
	unique = make([]string, 0, len(skus))
	for _, sku := range skus {
		sku = strings.TrimSpace(sku)
		if sku == "" {
			blank++
			continue
		}
		if _, ok := seen[sku]; ok {
			duplicates++
			continue
		}
		seen[sku] = struct{}{}
		unique = append(unique, sku)
	}
	return unique, blank, duplicates
}

// Chunk partitions skus in order into slices of at most size elements
func Chunk(skus []string, size int) [][]string {
	chunks := make([][]string, 0, (len(skus)+size-1)/size)
	for start := 0; start < len(skus); start += size {
		end := min(start+size, len(skus))
		chunks = append(chunks, skus[start:end:end])
	}
	return chunks
}
