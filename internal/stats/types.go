package stats

import (
	"time"

	"github.com/livinlefevreloca/stocksync/internal/db"
)

// Rate is the share of item rows that did not fail
type Rate struct {
	Total   int     `json:"total"`
	Success int     `json:"success"`
	Skipped int     `json:"skipped"`
	Failed  int     `json:"failed"`
	Rate    float64 `json:"rate"`
}

// ThroughputStats describes items per second across completed sessions
type ThroughputStats struct {
	Sessions int     `json:"sessions"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Average  float64 `json:"average"`
}

// FailingSKU is a SKU that failed repeatedly
type FailingSKU struct {
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
	Failures    int    `json:"failures"`
	LastMessage string `json:"last_message"`
}

// Delta is one applied or proposed stock change
type Delta struct {
	SessionID   string    `json:"session_id"`
	SKU         string    `json:"sku"`
	ProductName string    `json:"product_name"`
	OldStock    int       `json:"old_stock"`
	NewStock    int       `json:"new_stock"`
	Change      int       `json:"change"`
	DryRun      bool      `json:"dry_run"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionReport summarizes one session
type SessionReport struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	DryRun          bool       `json:"dry_run"`
	TotalRequested  int        `json:"total_requested"`
	ItemsProcessed  int        `json:"items_processed"`
	ItemsSuccessful int        `json:"items_successful"`
	ItemsSkipped    int        `json:"items_skipped"`
	ItemsFailed     int        `json:"items_failed"`
	TotalBatches    int        `json:"total_batches"`
	BatchesDone     int        `json:"batches_done"`
	Attempts        int        `json:"attempts"`
	LastError       *string    `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	// Duration and Throughput are zero until the session finished
	Duration    time.Duration `json:"duration"`
	Throughput  float64       `json:"throughput"`
	SuccessRate float64       `json:"success_rate"`
}

// Dashboard combines every aggregate over one window
type Dashboard struct {
	Window        string          `json:"window"`
	Since         time.Time       `json:"since"`
	Items         Rate            `json:"items"`
	Throughput    ThroughputStats `json:"throughput"`
	TopFailing    []FailingSKU    `json:"top_failing_skus"`
	LargestDeltas []Delta         `json:"largest_deltas"`
}

func reportFromSession(s *db.SyncSession) SessionReport {
	return SessionReport{
		ID:              s.ID,
		Kind:            s.Kind,
		Status:          s.Status,
		DryRun:          s.DryRun,
		TotalRequested:  s.TotalRequested,
		ItemsProcessed:  s.ItemsProcessed,
		ItemsSuccessful: s.ItemsSuccessful,
		ItemsSkipped:    s.ItemsSkipped,
		ItemsFailed:     s.ItemsFailed,
		TotalBatches:    s.TotalBatches,
		BatchesDone:     s.BatchesDone,
		Attempts:        s.Attempts,
		LastError:       s.LastError,
		CreatedAt:       s.CreatedAt,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
	}
}
