package api

import (
	"time"

	"github.com/livinlefevreloca/stocksync/internal/db"
)

// Result values of the sync endpoints
const (
	ResultAccepted              = "accepted"
	ResultRejectedNoInput       = "rejected-no-input"
	ResultRejectedInvalidConfig = "rejected-invalid-config"
	ResultRejectedInvalidBody   = "rejected-invalid-request"
	ResultError                 = "error"
)

// BatchRequest is the body of POST /api/v1/sync/batches
type BatchRequest struct {
	SKUs      []string `json:"skus"`
	DryRun    bool     `json:"dry_run"`
	ChunkSize int      `json:"chunk_size"`
}

// FullRequest is the body of POST /api/v1/sync/full
type FullRequest struct {
	DryRun bool `json:"dry_run"`
}

// SyncResponse is returned by both sync endpoints
type SyncResponse struct {
	Result     string `json:"result"`
	SessionID  string `json:"session_id,omitempty"`
	Requested  int    `json:"requested,omitempty"`
	Duplicates int    `json:"duplicates,omitempty"`
	Batches    int    `json:"batches,omitempty"`
	ChunkSize  int    `json:"chunk_size,omitempty"`
	DryRun     bool   `json:"dry_run"`
	Error      string `json:"error,omitempty"`
}

// LogEntry is one sync log row as served over HTTP
type LogEntry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	BatchIndex  *int      `json:"batch_index,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	OldStock    *int      `json:"old_stock,omitempty"`
	NewStock    *int      `json:"new_stock,omitempty"`
	Change      *int      `json:"change,omitempty"`
	Status      string    `json:"status"`
	DryRun      bool      `json:"dry_run"`
	Message     string    `json:"message"`
	ErrorDetail *string   `json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toLogEntries(rows []db.SyncLogEntry) []LogEntry {
	out := make([]LogEntry, len(rows))
	for i, r := range rows {
		out[i] = LogEntry{
			ID:          r.ID,
			Type:        r.Type,
			BatchIndex:  r.BatchIndex,
			SKU:         r.SKU,
			ProductName: r.ProductName,
			OldStock:    r.OldStock,
			NewStock:    r.NewStock,
			Change:      r.Change,
			Status:      r.Status,
			DryRun:      r.DryRun,
			Message:     r.Message,
			ErrorDetail: r.ErrorDetail,
			CreatedAt:   r.CreatedAt,
		}
	}
	return out
}
