package db

import (
	"context"
	"database/sql"
	"time"
)

const sessionColumns = `id, kind, total_requested, items_processed, items_successful, items_failed, items_skipped,
	total_batches, batches_done, dry_run, status, attempts, last_error, created_at, started_at, completed_at`

// CreateSession inserts a new sync session
func (db *DB) CreateSession(ctx context.Context, s *SyncSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = SessionPending
	}

	query := `
		INSERT INTO sync_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.exec(ctx, query,
		s.ID,
		s.Kind,
		s.TotalRequested,
		s.ItemsProcessed,
		s.ItemsSuccessful,
		s.ItemsFailed,
		s.ItemsSkipped,
		s.TotalBatches,
		s.BatchesDone,
		s.DryRun,
		s.Status,
		s.Attempts,
		s.LastError,
		s.CreatedAt,
		s.StartedAt,
		s.CompletedAt,
	)
	if IsDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

// GetSession retrieves a session by ID
func (db *DB) GetSession(ctx context.Context, id string) (*SyncSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sync_sessions WHERE id = ?`

	s, err := scanSession(db.queryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns sessions created at or after since, newest first
func (db *DB) ListSessions(ctx context.Context, since time.Time, limit int) ([]SyncSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sync_sessions
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := db.query(ctx, query, since.UTC(), limit)
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

// MarkSessionStarted moves a pending session to started.
// Returns false if the session was not pending.
func (db *DB) MarkSessionStarted(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE sync_sessions
		SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := db.exec(ctx, query, SessionStarted, at.UTC(), id, SessionPending)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// IncrementSessionCounters adds delta to the session counters in a single UPDATE
func (db *DB) IncrementSessionCounters(ctx context.Context, id string, delta CounterDelta) error {
	result, err := db.exec(ctx, incrementCountersQuery, delta.args(id)...)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// IncrementSessionCounters adds delta to the session counters within a transaction
func (tx *Tx) IncrementSessionCounters(ctx context.Context, id string, delta CounterDelta) error {
	result, err := tx.exec(ctx, incrementCountersQuery, delta.args(id)...)
	if err != nil {
		return err
	}
	return requireRow(result)
}

const incrementCountersQuery = `
	UPDATE sync_sessions
	SET total_requested = total_requested + ?,
		items_processed = items_processed + ?,
		items_successful = items_successful + ?,
		items_failed = items_failed + ?,
		items_skipped = items_skipped + ?,
		batches_done = batches_done + ?
	WHERE id = ?
`

func (d CounterDelta) args(id string) []any {
	return []any{d.Requested, d.Processed, d.Successful, d.Failed, d.Skipped, d.Batches, id}
}

// CompleteSessionIfDone marks the session completed once every batch is finalized.
// Sessions already failed are left alone.
func (tx *Tx) CompleteSessionIfDone(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE sync_sessions
		SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?) AND batches_done >= total_batches
	`

	result, err := tx.exec(ctx, query, SessionCompleted, at.UTC(), id, SessionPending, SessionStarted)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// FinishSession moves a non-terminal session to status, recording the error and attempt count
func (db *DB) FinishSession(ctx context.Context, id, status string, lastError *string, attempts int, at time.Time) (bool, error) {
	query := `
		UPDATE sync_sessions
		SET status = ?, completed_at = ?, last_error = COALESCE(?, last_error), attempts = ?
		WHERE id = ? AND status IN (?, ?)
	`

	result, err := db.exec(ctx, query, status, at.UTC(), lastError, attempts, id, SessionPending, SessionStarted)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SyncSession, error) {
	s := &SyncSession{}
	err := row.Scan(
		&s.ID,
		&s.Kind,
		&s.TotalRequested,
		&s.ItemsProcessed,
		&s.ItemsSuccessful,
		&s.ItemsFailed,
		&s.ItemsSkipped,
		&s.TotalBatches,
		&s.BatchesDone,
		&s.DryRun,
		&s.Status,
		&s.Attempts,
		&s.LastError,
		&s.CreatedAt,
		&s.StartedAt,
		&s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
