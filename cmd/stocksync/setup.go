package main

import (
	"context"
	"fmt"
	"time"

	"github.com/livinlefevreloca/stocksync/internal/config"
	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/queue"
	"github.com/livinlefevreloca/stocksync/internal/staging"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
	"github.com/livinlefevreloca/stocksync/tools/migrator"
)

// pollInterval is how often the one-shot commands check for completion
const pollInterval = 250 * time.Millisecond

// openDatabase connects and, unless configured otherwise, applies pending migrations
func (a *app) openDatabase() (*db.DB, error) {
	cfg := a.config.Database

	a.logger.Info("connecting to database", "driver", cfg.Driver)
	database, err := db.OpenWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.SkipMigrations {
		a.logger.Info("skipping migrations", "reason", "configured to skip")
		return database, nil
	}
	if err := a.migrate(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func (a *app) migrate(database *db.DB) error {
	if err := migrator.RunMigrations(database.DB, database.Driver(), db.Migrations, db.MigrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, err := migrator.GetCurrentVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	a.logger.Info("database schema ready", "version", version)
	return nil
}

// newSource loads the catalog export and throttles reads from it
func (a *app) newSource() (stocksource.Source, error) {
	cfg := a.config.Source

	snapshot, err := stocksource.LoadSnapshot(cfg.SnapshotPath, cfg.PageSize)
	if err != nil {
		return nil, err
	}
	a.logger.Info("loaded catalog snapshot", "path", cfg.SnapshotPath, "skus", snapshot.Len())

	return stocksource.NewLimited(snapshot, cfg.RatePerMinute, cfg.Burst), nil
}

func (a *app) newCache(database *db.DB) staging.Cache {
	if a.config.Staging.Backend == config.StagingMemory {
		return staging.NewMemoryCache()
	}
	return staging.NewSQLCache(database)
}

// newEngine wires the pool and the sync engine. The caller starts the pool.
func (a *app) newEngine(database *db.DB) (*stocksync.Engine, *queue.Pool, error) {
	source, err := a.newSource()
	if err != nil {
		return nil, nil, err
	}

	pool, err := queue.NewPool(a.config.Queue, a.logger)
	if err != nil {
		return nil, nil, err
	}

	engine := stocksync.NewEngine(database, source, a.newCache(database), pool, a.config.Sync, a.logger)
	return engine, pool, nil
}

// waitForSession blocks until the session is terminal and no job is left running
func waitForSession(ctx context.Context, database *db.DB, engine *stocksync.Engine, sessionID string) (*db.SyncSession, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		session, err := database.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Terminal() && engine.Pending() == 0 {
			return session, nil
		}

		select {
		case <-ctx.Done():
			return session, ctx.Err()
		case <-ticker.C:
		}
	}
}
