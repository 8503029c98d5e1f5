package stocksync

import (
	"context"
	"log/slog"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/queue"
	"github.com/livinlefevreloca/stocksync/internal/staging"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
)

// Engine bundles the dispatcher and both job kinds around one pool
type Engine struct {
	Dispatcher *Dispatcher
	Batches    *BatchWorker
	Full       *FullCatalogJob

	pool   *queue.Pool
	config Config
}

// NewEngine builds the sync components and registers their handlers and
// exhausted hooks on pool. The pool must not be started yet.
func NewEngine(database *db.DB, source stocksource.Source, cache staging.Cache, pool *queue.Pool, config Config, logger *slog.Logger) *Engine {
	e := &Engine{
		Dispatcher: NewDispatcher(database, pool, config, logger.With("component", "dispatcher")),
		Batches:    NewBatchWorker(database, source, logger.With("component", "batch_worker")),
		Full:       NewFullCatalogJob(database, source, cache, pool, config, logger.With("component", "full_catalog")),
		pool:       pool,
		config:     config,
	}

	pool.Register(JobTypeBatch, e.Batches.Handle)
	pool.OnExhausted(JobTypeBatch, e.Batches.HandleExhausted)
	pool.Register(JobTypeFull, e.Full.Handle)
	pool.OnExhausted(JobTypeFull, e.Full.HandleExhausted)

	return e
}

// Dispatch starts a batch session. A zero chunk size uses the configured default.
func (e *Engine) Dispatch(ctx context.Context, skus []string, dryRun bool, chunkSize int) (*DispatchResult, error) {
	if chunkSize == 0 {
		chunkSize = e.config.ChunkSize
	}
	return e.Dispatcher.Dispatch(ctx, DispatchRequest{SKUs: skus, DryRun: dryRun, ChunkSize: chunkSize})
}

// LaunchFull starts a full-catalog session
func (e *Engine) LaunchFull(ctx context.Context, dryRun bool) (*LaunchResult, error) {
	return e.Full.Launch(ctx, dryRun)
}

// Pending returns the number of sync jobs queued or running
func (e *Engine) Pending() int {
	return e.pool.Pending()
}
