package db

import (
	"context"
	"time"
)

// CountItemStatuses returns per-status counts of item rows created at or after since
func (db *DB) CountItemStatuses(ctx context.Context, since time.Time) ([]StatusCount, error) {
	query := `
		SELECT status, COUNT(*)
		FROM sync_logs
		WHERE type = ? AND created_at >= ?
		GROUP BY status
		ORDER BY status
	`

	rows, err := db.query(ctx, query, LogTypeItem, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []StatusCount{}
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TopFailingSKUs returns the SKUs with the most failed item rows since the
// given time, each with the message of its newest failure
func (db *DB) TopFailingSKUs(ctx context.Context, since time.Time, limit int) ([]SKUFailureCount, error) {
	query := `
		SELECT f.sku, MAX(f.product_name), COUNT(*), (
			SELECT l.message
			FROM sync_logs l
			WHERE l.sku = f.sku AND l.type = ? AND l.status = ? AND l.created_at >= ?
			ORDER BY l.created_at DESC, l.id DESC
			LIMIT 1
		)
		FROM sync_logs f
		WHERE f.type = ? AND f.status = ? AND f.created_at >= ?
		GROUP BY f.sku
		ORDER BY COUNT(*) DESC, f.sku
		LIMIT ?
	`

	since = since.UTC()
	rows, err := db.query(ctx, query,
		LogTypeItem, LogFailed, since,
		LogTypeItem, LogFailed, since,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	failures := []SKUFailureCount{}
	for rows.Next() {
		var f SKUFailureCount
		if err := rows.Scan(&f.SKU, &f.ProductName, &f.Failures, &f.LastMessage); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// LargestDeltas returns successful item rows with the largest absolute stock change
func (db *DB) LargestDeltas(ctx context.Context, since time.Time, limit int) ([]SyncLogEntry, error) {
	query := `
		SELECT ` + logColumns + `
		FROM sync_logs
		WHERE type = ? AND status = ? AND stock_change IS NOT NULL AND created_at >= ?
		ORDER BY ABS(stock_change) DESC, id
		LIMIT ?
	`

	rows, err := db.query(ctx, query, LogTypeItem, LogSuccess, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogs(rows)
}

// CompletedSessions returns completed sessions that finished at or after since
func (db *DB) CompletedSessions(ctx context.Context, since time.Time) ([]SyncSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sync_sessions
		WHERE status = ? AND completed_at >= ? AND started_at IS NOT NULL
		ORDER BY completed_at
	`

	rows, err := db.query(ctx, query, SessionCompleted, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []SyncSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
