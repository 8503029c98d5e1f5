package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// maxRowsPerInsert bounds a single multi-row INSERT well under SQLite's variable limit
const maxRowsPerInsert = 500

const logColumns = `id, session_id, type, batch_index, sku, product_name, old_stock, new_stock, stock_change,
	status, dry_run, message, error_detail, created_at`

const logColumnCount = 14

// InsertLogs appends entries in one transaction
func (db *DB) InsertLogs(ctx context.Context, entries []SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithTransaction(ctx, func(tx *Tx) error {
		return tx.InsertLogs(ctx, entries)
	})
}

// InsertLogs appends entries using multi-row INSERT statements
func (tx *Tx) InsertLogs(ctx context.Context, entries []SyncLogEntry) error {
	for start := 0; start < len(entries); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(entries))
		chunk := entries[start:end]

		var b strings.Builder
		b.WriteString("INSERT INTO sync_logs (" + logColumns + ") VALUES ")
		args := make([]any, 0, len(chunk)*logColumnCount)
		row := placeholders(logColumnCount)
		for i, e := range chunk {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(row)
			if e.CreatedAt.IsZero() {
				e.CreatedAt = time.Now().UTC()
			}
			args = append(args,
				e.ID,
				e.SessionID,
				e.Type,
				e.BatchIndex,
				e.SKU,
				e.ProductName,
				e.OldStock,
				e.NewStock,
				e.Change,
				e.Status,
				e.DryRun,
				e.Message,
				e.ErrorDetail,
				e.CreatedAt.UTC(),
			)
		}

		if _, err := tx.exec(ctx, b.String(), args...); err != nil {
			return err
		}
	}
	return nil
}

// GetSessionLogs returns the log rows of a session in insertion order
func (db *DB) GetSessionLogs(ctx context.Context, sessionID string, limit int) ([]SyncLogEntry, error) {
	query := `
		SELECT ` + logColumns + `
		FROM sync_logs
		WHERE session_id = ?
		ORDER BY id
		LIMIT ?
	`

	rows, err := db.query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogs(rows)
}

// CountItemLogs returns how many item rows a session has committed
func (db *DB) CountItemLogs(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := db.queryRow(ctx,
		`SELECT COUNT(*) FROM sync_logs WHERE session_id = ? AND type = ?`,
		sessionID, LogTypeItem,
	).Scan(&n)
	return n, err
}

// BatchExists reports whether a batch of a session was already finalized
func (db *DB) BatchExists(ctx context.Context, sessionID string, batchIndex int) (bool, error) {
	var one int
	err := db.queryRow(ctx,
		`SELECT 1 FROM sync_batches WHERE session_id = ? AND batch_index = ?`,
		sessionID, batchIndex,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// LogBuilder returns the rows and counter increments to commit after the
// stock updates of the same transaction ran. failed holds the updates that
// were rejected, keyed by product id. It runs once per transaction attempt.
type LogBuilder func(failed map[int64]error) ([]SyncLogEntry, CounterDelta)

// FinalizeBatch commits a batch outcome atomically: the idempotency marker,
// the stock updates, every log row, the counter increments and the
// completion check. Returns ErrDuplicate if the batch was already finalized,
// in which case no stock is written.
func (db *DB) FinalizeBatch(ctx context.Context, batch SyncBatch, updates []StockUpdate, build LogBuilder) (sessionDone bool, err error) {
	err = db.WithTransaction(ctx, func(tx *Tx) error {
		_, err := tx.exec(ctx, `
			INSERT INTO sync_batches (session_id, batch_index, status, attempts, completed_at)
			VALUES (?, ?, ?, ?, ?)
		`, batch.SessionID, batch.BatchIndex, batch.Status, batch.Attempts, batch.CompletedAt.UTC())
		if err != nil {
			if IsDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}

		if err := tx.commitLogs(ctx, batch.SessionID, updates, build); err != nil {
			return err
		}

		sessionDone, err = tx.CompleteSessionIfDone(ctx, batch.SessionID, batch.CompletedAt)
		return err
	})
	return sessionDone, err
}

// CommitLogs writes stock updates together with the rows recording them
func (db *DB) CommitLogs(ctx context.Context, sessionID string, updates []StockUpdate, build LogBuilder) error {
	return db.WithTransaction(ctx, func(tx *Tx) error {
		return tx.commitLogs(ctx, sessionID, updates, build)
	})
}

// FlushLogs commits a group of log rows with their counter increments
func (db *DB) FlushLogs(ctx context.Context, sessionID string, entries []SyncLogEntry, delta CounterDelta) error {
	return db.CommitLogs(ctx, sessionID, nil, func(map[int64]error) ([]SyncLogEntry, CounterDelta) {
		return entries, delta
	})
}

func (tx *Tx) commitLogs(ctx context.Context, sessionID string, updates []StockUpdate, build LogBuilder) error {
	failed, err := tx.ApplyStockUpdates(ctx, updates)
	if err != nil {
		return err
	}

	entries, delta := build(failed)
	if err := tx.InsertLogs(ctx, entries); err != nil {
		return err
	}
	return tx.IncrementSessionCounters(ctx, sessionID, delta)
}

func scanLogs(rows *sql.Rows) ([]SyncLogEntry, error) {
	entries := []SyncLogEntry{}
	for rows.Next() {
		var e SyncLogEntry
		err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.Type,
			&e.BatchIndex,
			&e.SKU,
			&e.ProductName,
			&e.OldStock,
			&e.NewStock,
			&e.Change,
			&e.Status,
			&e.DryRun,
			&e.Message,
			&e.ErrorDetail,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
