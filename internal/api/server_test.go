package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/stats"
	"github.com/livinlefevreloca/stocksync/internal/stocksync"
	"github.com/livinlefevreloca/stocksync/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeSyncer validates like the real dispatcher but only records requests
type fakeSyncer struct {
	dispatched []BatchRequest
	full       []bool
	err        error
}

func (f *fakeSyncer) Dispatch(ctx context.Context, skus []string, dryRun bool, chunkSize int) (*stocksync.DispatchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if chunkSize < 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", stocksync.ErrInvalidConfig)
	}
	unique, _, duplicates := stocksync.Dedupe(skus)
	if len(unique) == 0 {
		return nil, stocksync.ErrNoValidInput
	}
	f.dispatched = append(f.dispatched, BatchRequest{SKUs: skus, DryRun: dryRun, ChunkSize: chunkSize})
	return &stocksync.DispatchResult{
		SessionID:  "session-1",
		Requested:  len(unique),
		Duplicates: duplicates,
		ChunkSize:  chunkSize,
		Batches:    1,
		DryRun:     dryRun,
	}, nil
}

func (f *fakeSyncer) LaunchFull(ctx context.Context, dryRun bool) (*stocksync.LaunchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.full = append(f.full, dryRun)
	return &stocksync.LaunchResult{SessionID: "full-1", DryRun: dryRun}, nil
}

func newTestServer(t *testing.T, syncer Syncer) (*Server, *db.DB) {
	t.Helper()
	database := testutil.NewDB(t)
	config := DefaultConfig()
	config.MaxSKUs = 5
	config.LogLimit = 3
	server := NewServer(config, syncer, database, stats.NewAggregator(database, stats.DefaultConfig()), testutil.NewTestLogger().Logger())
	return server, database
}

func do(t *testing.T, server *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestDispatchBatches(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantResult string
	}{
		{
			name:       "accepted",
			body:       BatchRequest{SKUs: []string{"A", "B", "A"}, DryRun: true, ChunkSize: 10},
			wantStatus: http.StatusAccepted,
			wantResult: ResultAccepted,
		},
		{
			name:       "no input",
			body:       BatchRequest{SKUs: []string{" ", ""}},
			wantStatus: http.StatusUnprocessableEntity,
			wantResult: ResultRejectedNoInput,
		},
		{
			name:       "invalid chunk size",
			body:       BatchRequest{SKUs: []string{"A"}, ChunkSize: -1},
			wantStatus: http.StatusBadRequest,
			wantResult: ResultRejectedInvalidConfig,
		},
		{
			name:       "too many SKUs",
			body:       BatchRequest{SKUs: []string{"1", "2", "3", "4", "5", "6"}},
			wantStatus: http.StatusBadRequest,
			wantResult: ResultRejectedInvalidConfig,
		},
		{
			name:       "malformed body",
			body:       `{"skus": "A"`,
			wantStatus: http.StatusBadRequest,
			wantResult: ResultRejectedInvalidBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, &fakeSyncer{})
			rec, body := do(t, server, http.MethodPost, "/api/v1/sync/batches", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantResult, body["result"])
		})
	}
}

func TestDispatchBatches_AcceptedBody(t *testing.T) {
	syncer := &fakeSyncer{}
	server, _ := newTestServer(t, syncer)

	rec, body := do(t, server, http.MethodPost, "/api/v1/sync/batches",
		BatchRequest{SKUs: []string{"A", "B", "A"}, DryRun: true, ChunkSize: 10})
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, "session-1", body["session_id"])
	assert.Equal(t, float64(2), body["requested"])
	assert.Equal(t, float64(1), body["duplicates"])
	assert.Equal(t, true, body["dry_run"])
	require.Len(t, syncer.dispatched, 1)
	assert.Equal(t, 10, syncer.dispatched[0].ChunkSize)
}

func TestDispatchBatches_InternalError(t *testing.T) {
	server, _ := newTestServer(t, &fakeSyncer{err: errors.New("queue: pool is shut down")})

	rec, body := do(t, server, http.MethodPost, "/api/v1/sync/batches", BatchRequest{SKUs: []string{"A"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ResultError, body["result"])
}

func TestLaunchFull(t *testing.T) {
	syncer := &fakeSyncer{}
	server, _ := newTestServer(t, syncer)

	rec, body := do(t, server, http.MethodPost, "/api/v1/sync/full", FullRequest{DryRun: true})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, ResultAccepted, body["result"])
	assert.Equal(t, "full-1", body["session_id"])

	rec, _ = do(t, server, http.MethodPost, "/api/v1/sync/full", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []bool{true, false}, syncer.full)
}

func TestSessionEndpoints(t *testing.T) {
	server, database := newTestServer(t, &fakeSyncer{})
	ctx := context.Background()

	require.NoError(t, database.CreateSession(ctx, &db.SyncSession{
		ID: "s1", Kind: db.SessionKindBatch, TotalRequested: 4, TotalBatches: 1,
		Status: db.SessionPending, CreatedAt: time.Now().UTC(),
	}))
	var entries []db.SyncLogEntry
	for i, sku := range []string{"A", "B", "C", "D"} {
		entries = append(entries, db.SyncLogEntry{
			ID:        fmt.Sprintf("01J00000000000000000000%03d", i),
			SessionID: "s1",
			Type:      db.LogTypeItem,
			SKU:       sku,
			Status:    db.LogSkipped,
			Message:   "stock already in sync",
			CreatedAt: time.Now().UTC(),
		})
	}
	require.NoError(t, database.FlushLogs(ctx, "s1", entries, db.CounterDelta{Processed: 4, Skipped: 4}))

	rec, body := do(t, server, http.MethodGet, "/api/v1/sync/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", body["id"])
	assert.Equal(t, float64(4), body["items_processed"])
	assert.Equal(t, float64(1), body["success_rate"])

	rec, body = do(t, server, http.MethodGet, "/api/v1/sync/sessions/s1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := body["logs"].([]any)
	assert.Len(t, logs, 3, "capped by the configured log limit")
	assert.Equal(t, "A", logs[0].(map[string]any)["sku"])

	rec, body = do(t, server, http.MethodGet, "/api/v1/sync/sessions/s1/logs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["logs"].([]any), 2)

	rec, _ = do(t, server, http.MethodGet, "/api/v1/sync/sessions/s1/logs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, server, http.MethodGet, "/api/v1/sync/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, server, http.MethodGet, "/api/v1/sync/sessions/missing/logs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeSyncer{})

	rec, body := do(t, server, http.MethodGet, "/api/v1/sync/stats?window=2h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2h0m0s", body["window"])
	assert.Contains(t, body, "items")
	assert.Contains(t, body, "throughput")

	rec, body = do(t, server, http.MethodGet, "/api/v1/sync/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "24h0m0s", body["window"])

	rec, _ = do(t, server, http.MethodGet, "/api/v1/sync/stats?window=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	server, database := newTestServer(t, &fakeSyncer{})

	rec, body := do(t, server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	database.Close()
	rec, _ = do(t, server, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
