// Package stats reads the sync log and session tables and aggregates them
// for operators. It never writes.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livinlefevreloca/stocksync/internal/db"
)

// ErrInvalidWindow is returned for a non-positive window
var ErrInvalidWindow = errors.New("stats window must be positive")

// Store is the read side of the sync tables
type Store interface {
	GetSession(ctx context.Context, id string) (*db.SyncSession, error)
	CountItemStatuses(ctx context.Context, since time.Time) ([]db.StatusCount, error)
	TopFailingSKUs(ctx context.Context, since time.Time, limit int) ([]db.SKUFailureCount, error)
	LargestDeltas(ctx context.Context, since time.Time, limit int) ([]db.SyncLogEntry, error)
	CompletedSessions(ctx context.Context, since time.Time) ([]db.SyncSession, error)
}

// Aggregator computes success rates, throughput and outliers over a window
type Aggregator struct {
	store  Store
	config Config
	now    func() time.Time
}

// NewAggregator creates an aggregator over store
func NewAggregator(store Store, config Config) *Aggregator {
	return &Aggregator{
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// since resolves window to a start time; zero means the configured default
func (a *Aggregator) since(window time.Duration) (time.Duration, time.Time, error) {
	if window == 0 {
		window = a.config.DefaultWindow
	}
	if window < 0 {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidWindow, window)
	}
	return window, a.now().Add(-window), nil
}

// SuccessRate counts item rows in the window. Skipped rows are not failures.
// An empty window has a rate of 0.
func (a *Aggregator) SuccessRate(ctx context.Context, window time.Duration) (Rate, error) {
	_, since, err := a.since(window)
	if err != nil {
		return Rate{}, err
	}

	counts, err := a.store.CountItemStatuses(ctx, since)
	if err != nil {
		return Rate{}, fmt.Errorf("failed to count item statuses: %w", err)
	}

	var r Rate
	for _, c := range counts {
		r.Total += c.Count
		switch c.Status {
		case db.LogSuccess:
			r.Success += c.Count
		case db.LogSkipped:
			r.Skipped += c.Count
		default:
			r.Failed += c.Count
		}
	}
	if r.Total > 0 {
		r.Rate = float64(r.Success+r.Skipped) / float64(r.Total)
	}
	return r, nil
}

// Throughput returns items per second of a finished session
func (a *Aggregator) Throughput(ctx context.Context, sessionID string) (float64, error) {
	s, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return throughput(s), nil
}

// AverageThroughput summarizes per-session throughput of sessions completed in the window
func (a *Aggregator) AverageThroughput(ctx context.Context, window time.Duration) (ThroughputStats, error) {
	_, since, err := a.since(window)
	if err != nil {
		return ThroughputStats{}, err
	}

	sessions, err := a.store.CompletedSessions(ctx, since)
	if err != nil {
		return ThroughputStats{}, fmt.Errorf("failed to list completed sessions: %w", err)
	}

	values := make([]float64, 0, len(sessions))
	for i := range sessions {
		values = append(values, throughput(&sessions[i]))
	}
	minV, maxV, avg := calculateMinMaxAvg(values)
	return ThroughputStats{Sessions: len(values), Min: minV, Max: maxV, Average: avg}, nil
}

// TopFailingSKUs returns the SKUs with the most failed rows in the window
func (a *Aggregator) TopFailingSKUs(ctx context.Context, window time.Duration, limit int) ([]FailingSKU, error) {
	_, since, err := a.since(window)
	if err != nil {
		return nil, err
	}

	rows, err := a.store.TopFailingSKUs(ctx, since, a.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read failing SKUs: %w", err)
	}

	out := make([]FailingSKU, len(rows))
	for i, r := range rows {
		out[i] = FailingSKU{SKU: r.SKU, ProductName: r.ProductName, Failures: r.Failures, LastMessage: r.LastMessage}
	}
	return out, nil
}

// LargestDeltas returns successful rows ordered by absolute change
func (a *Aggregator) LargestDeltas(ctx context.Context, window time.Duration, limit int) ([]Delta, error) {
	_, since, err := a.since(window)
	if err != nil {
		return nil, err
	}

	rows, err := a.store.LargestDeltas(ctx, since, a.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read largest deltas: %w", err)
	}

	out := make([]Delta, 0, len(rows))
	for _, r := range rows {
		if r.OldStock == nil || r.NewStock == nil || r.Change == nil {
			continue
		}
		out = append(out, Delta{
			SessionID:   r.SessionID,
			SKU:         r.SKU,
			ProductName: r.ProductName,
			OldStock:    *r.OldStock,
			NewStock:    *r.NewStock,
			Change:      *r.Change,
			DryRun:      r.DryRun,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// SessionSummary reports one session with its derived figures
func (a *Aggregator) SessionSummary(ctx context.Context, sessionID string) (*SessionReport, error) {
	s, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	report := reportFromSession(s)
	if s.StartedAt != nil && s.CompletedAt != nil {
		report.Duration = s.CompletedAt.Sub(*s.StartedAt)
	}
	report.Throughput = throughput(s)
	if s.ItemsProcessed > 0 {
		report.SuccessRate = float64(s.ItemsProcessed-s.ItemsFailed) / float64(s.ItemsProcessed)
	}
	return &report, nil
}

// Dashboard combines every aggregate over window
func (a *Aggregator) Dashboard(ctx context.Context, window time.Duration) (*Dashboard, error) {
	window, since, err := a.since(window)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Window: window.String(), Since: since.UTC()}

	if d.Items, err = a.SuccessRate(ctx, window); err != nil {
		return nil, err
	}
	if d.Throughput, err = a.AverageThroughput(ctx, window); err != nil {
		return nil, err
	}
	if d.TopFailing, err = a.TopFailingSKUs(ctx, window, 0); err != nil {
		return nil, err
	}
	if d.LargestDeltas, err = a.LargestDeltas(ctx, window, 0); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *Aggregator) limit(n int) int {
	if n <= 0 {
		return a.config.TopLimit
	}
	return n
}

// throughput is zero for sessions that have not finished or took no measurable time
func throughput(s *db.SyncSession) float64 {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	elapsed := s.CompletedAt.Sub(*s.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.ItemsProcessed) / elapsed
}

func calculateMinMaxAvg(values []float64) (minV, maxV, avg float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}

	minV, maxV = values[0], values[0]
	sum := 0.0
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		sum += v
	}
	return minV, maxV, sum / float64(len(values))
}
