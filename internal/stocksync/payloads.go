package stocksync

// BatchPayload is the job payload of one dispatcher chunk.
// BatchIndex and TotalBatches identify the chunk within its session.
type BatchPayload struct {
	SessionID    string   `json:"session_id"`
	SKUs         []string `json:"skus"`
	DryRun       bool     `json:"dry_run"`
	BatchIndex   int      `json:"batch_index"`
	TotalBatches int      `json:"total_batches"`
}

// FullPayload is the job payload of a full-catalog run
type FullPayload struct {
	SessionID string `json:"session_id"`
	DryRun    bool   `json:"dry_run"`
}
