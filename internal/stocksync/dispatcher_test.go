package stocksync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/testutil"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name       string
		input      []string
		unique     []string
		blank      int
		duplicates int
	}{
		{
			name:   "no changes",
			input:  []string{"A", "B", "C"},
			unique: []string{"A", "B", "C"},
		},
		{
			name:       "keeps first occurrence",
			input:      []string{"B", "A", "B", "C", "A"},
			unique:     []string{"B", "A", "C"},
			duplicates: 2,
		},
		{
			name:       "trims before comparing",
			input:      []string{" A", "A ", "\tB\n"},
			unique:     []string{"A", "B"},
			duplicates: 1,
		},
		{
			name:   "drops blanks",
			input:  []string{"", "  ", "A", "\t"},
			unique: []string{"A"},
			blank:  3,
		},
		{
			name:   "empty",
			input:  nil,
			unique: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unique, blank, duplicates := Dedupe(tt.input)
			assert.Equal(t, tt.unique, unique)
			assert.Equal(t, tt.blank, blank)
			assert.Equal(t, tt.duplicates, duplicates)
		})
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"exact multiple", 200, 100, []int{100, 100}},
		{"remainder", 250, 100, []int{100, 100, 50}},
		{"smaller than chunk", 3, 10, []int{3}},
		{"chunk of one", 4, 1, []int{1, 1, 1, 1}},
		{"empty", 0, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skus := testutil.SKUs("SKU", tt.n)
			chunks := Chunk(skus, tt.size)

			var sizes []int
			var union []string
			for _, c := range chunks {
				sizes = append(sizes, len(c))
				union = append(union, c...)
			}
			assert.Equal(t, tt.sizes, sizes)
			assert.Equal(t, (tt.n+tt.size-1)/tt.size, len(chunks))
			if tt.n > 0 {
				assert.Equal(t, skus, union, "chunks must cover the input in order")
			}
		})
	}
}

func TestChunk_AppendDoesNotLeakIntoNextChunk(t *testing.T) {
	chunks := Chunk([]string{"A", "B", "C", "D"}, 2)
	_ = append(chunks[0], "X")
	assert.Equal(t, []string{"C", "D"}, chunks[1])
}

func TestDispatch_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		skus      []string
		chunkSize int
		wantErr   error
	}{
		{"zero chunk size", []string{"A"}, 0, ErrInvalidConfig},
		{"negative chunk size", []string{"A"}, -5, ErrInvalidConfig},
		{"chunk size over maximum", []string{"A"}, 1001, ErrInvalidConfig},
		{"no SKUs", nil, 10, ErrNoValidInput},
		{"only blanks", []string{"", "   ", "\t"}, 10, ErrNoValidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			database := testutil.NewDB(t)
			enqueuer := &recordingEnqueuer{}
			d := NewDispatcher(database, enqueuer, DefaultConfig(), testutil.NewTestLogger().Logger())

			result, err := d.Dispatch(context.Background(), DispatchRequest{SKUs: tt.skus, ChunkSize: tt.chunkSize})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Nil(t, result)
			assert.Empty(t, enqueuer.jobs)

			sessions, err := database.ListSessions(context.Background(), time.Time{}, 10)
			require.NoError(t, err)
			assert.Empty(t, sessions, "rejected requests must not create a session")
		})
	}
}

func TestDispatch_EnqueuesOneJobPerChunk(t *testing.T) {
	database := testutil.NewDB(t)
	enqueuer := &recordingEnqueuer{}
	config := DefaultConfig()
	d := NewDispatcher(database, enqueuer, config, testutil.NewTestLogger().Logger())

	skus := testutil.SKUs("SKU", 250)
	input := append([]string{"", " "}, skus...)
	input = append(input, skus[0], skus[10])

	result, err := d.Dispatch(context.Background(), DispatchRequest{SKUs: input, DryRun: true, ChunkSize: 100})
	require.NoError(t, err)

	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, 250, result.Requested)
	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, 2, result.Blank)
	assert.Equal(t, 3, result.Batches)
	assert.True(t, result.DryRun)

	require.Len(t, enqueuer.jobs, 3)
	seen := make(map[string]bool)
	for i, job := range enqueuer.jobs {
		assert.Equal(t, JobTypeBatch, job.Type)
		assert.Equal(t, config.BatchQueue, job.Queue)
		assert.Equal(t, config.BatchTimeout, job.Timeout)

		var p BatchPayload
		require.NoError(t, job.Decode(&p))
		assert.Equal(t, result.SessionID, p.SessionID)
		assert.Equal(t, i, p.BatchIndex)
		assert.Equal(t, 3, p.TotalBatches)
		assert.True(t, p.DryRun)
		for _, sku := range p.SKUs {
			assert.False(t, seen[sku], "SKU %s appears in two batches", sku)
			seen[sku] = true
		}
	}
	assert.Len(t, seen, 250)

	session, err := database.GetSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, db.SessionKindBatch, session.Kind)
	assert.Equal(t, db.SessionPending, session.Status)
	assert.Equal(t, 250, session.TotalRequested)
	assert.Equal(t, 3, session.TotalBatches)
	assert.True(t, session.DryRun)

	entries, err := database.GetSessionLogs(context.Background(), result.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, db.LogTypeSummary, entries[0].Type)
	assert.Contains(t, entries[0].Message, "dispatched 250 SKUs in 3 batches of up to 100")
	assert.Contains(t, entries[0].Message, "2 duplicates")
}

func TestDispatch_EnqueueFailureFailsSession(t *testing.T) {
	database := testutil.NewDB(t)
	enqueuer := &recordingEnqueuer{failAt: 1, err: errors.New("queue is full")}
	logger := testutil.NewTestLogger()
	d := NewDispatcher(database, enqueuer, DefaultConfig(), logger.Logger())

	_, err := d.Dispatch(context.Background(), DispatchRequest{SKUs: testutil.SKUs("SKU", 30), ChunkSize: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
	assert.Len(t, enqueuer.jobs, 1)

	sessions, err := database.ListSessions(context.Background(), time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, db.SessionFailed, sessions[0].Status)
	require.NotNil(t, sessions[0].LastError)
	assert.True(t, strings.HasPrefix(*sessions[0].LastError, "enqueue batch 2/3"))
	assert.NotEmpty(t, logger.Find("dispatch failed"))
}

func TestEngine_DispatchUsesDefaultChunkSize(t *testing.T) {
	h := newHarness(t)
	skus := testutil.SKUs("SKU", 5)
	h.seed(t, skus, nil)

	result, err := h.engine.Dispatch(context.Background(), skus, true, 0)
	require.NoError(t, err)
	assert.Equal(t, h.config.ChunkSize, result.ChunkSize)
	assert.Equal(t, 1, result.Batches)

	h.waitForSession(t, result.SessionID)
}
