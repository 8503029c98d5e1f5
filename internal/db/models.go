package db

import "time"

// Session kinds
const (
	SessionKindBatch = "batch"
	SessionKindFull  = "full"
)

// Session statuses
const (
	SessionPending   = "pending"
	SessionStarted   = "started"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// Log entry types
const (
	LogTypeItem    = "item"
	LogTypeSummary = "summary"
)

// Log entry statuses
const (
	LogSuccess = "success"
	LogSkipped = "skipped"
	LogFailed  = "failed"
)

// Batch marker statuses
const (
	BatchCompleted = "completed"
	BatchCancelled = "cancelled"
	BatchExhausted = "exhausted"
)

// ProductSynced is written to products.last_sync_status after a stock update
const ProductSynced = "synced"

// SyncSession is one correlated execution of a sync request
type SyncSession struct {
	ID              string
	Kind            string
	TotalRequested  int
	ItemsProcessed  int
	ItemsSuccessful int
	ItemsFailed     int
	ItemsSkipped    int
	TotalBatches    int
	BatchesDone     int
	DryRun          bool
	Status          string
	Attempts        int
	LastError       *string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Terminal reports whether the session reached completed or failed
func (s *SyncSession) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}

// SyncLogEntry is one append-only audit row
type SyncLogEntry struct {
	ID          string
	SessionID   string
	Type        string
	BatchIndex  *int
	SKU         string
	ProductName string
	OldStock    *int
	NewStock    *int
	Change      *int
	Status      string
	DryRun      bool
	Message     string
	ErrorDetail *string
	CreatedAt   time.Time
}

// SyncBatch marks a chunk of a session as finalized
type SyncBatch struct {
	SessionID   string
	BatchIndex  int
	Status      string
	Attempts    int
	CompletedAt time.Time
}

// CounterDelta is added atomically to a session's counters
type CounterDelta struct {
	Requested  int
	Processed  int
	Successful int
	Failed     int
	Skipped    int
	Batches    int
}

// Product is the subset of the storefront product record the sync engine touches
type Product struct {
	ID             int64
	SKU            string
	Name           string
	StockQuantity  int
	LastSyncStatus *string
	LastSyncAt     *time.Time
}

// StagedRecord is one external catalog row held for the lifetime of a session
type StagedRecord struct {
	SessionID      string
	SKU            string
	ProductName    string
	AvailableStock *int
	TotalStock     *int
}

// StatusCount is a log status with its row count
type StatusCount struct {
	Status string
	Count  int
}

// SKUFailureCount is a SKU with the number of failed rows it produced
type SKUFailureCount struct {
	SKU         string
	ProductName string
	Failures    int
	LastMessage string
}
