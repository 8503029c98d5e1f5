package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/testutil"
)

// MockStore serves canned rows and records the arguments it was called with
type MockStore struct {
	sessions  map[string]*db.SyncSession
	counts    []db.StatusCount
	failing   []db.SKUFailureCount
	deltas    []db.SyncLogEntry
	completed []db.SyncSession
	err       error

	lastSince time.Time
	lastLimit int
}

func (m *MockStore) GetSession(ctx context.Context, id string) (*db.SyncSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return s, nil
}

func (m *MockStore) CountItemStatuses(ctx context.Context, since time.Time) ([]db.StatusCount, error) {
	m.lastSince = since
	return m.counts, m.err
}

func (m *MockStore) TopFailingSKUs(ctx context.Context, since time.Time, limit int) ([]db.SKUFailureCount, error) {
	m.lastSince, m.lastLimit = since, limit
	return m.failing, m.err
}

func (m *MockStore) LargestDeltas(ctx context.Context, since time.Time, limit int) ([]db.SyncLogEntry, error) {
	m.lastSince, m.lastLimit = since, limit
	return m.deltas, m.err
}

func (m *MockStore) CompletedSessions(ctx context.Context, since time.Time) ([]db.SyncSession, error) {
	m.lastSince = since
	return m.completed, m.err
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator(store Store) *Aggregator {
	a := NewAggregator(store, DefaultConfig())
	a.now = func() time.Time { return baseTime }
	return a
}

func finished(id string, processed, failed int, took time.Duration) db.SyncSession {
	started := baseTime.Add(-time.Hour)
	completed := started.Add(took)
	return db.SyncSession{
		ID:             id,
		Kind:           db.SessionKindBatch,
		Status:         db.SessionCompleted,
		ItemsProcessed: processed,
		ItemsFailed:    failed,
		StartedAt:      &started,
		CompletedAt:    &completed,
	}
}

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name   string
		counts []db.StatusCount
		want   Rate
	}{
		{
			name: "skipped counts as success",
			counts: []db.StatusCount{
				{Status: db.LogFailed, Count: 2},
				{Status: db.LogSkipped, Count: 3},
				{Status: db.LogSuccess, Count: 5},
			},
			want: Rate{Total: 10, Success: 5, Skipped: 3, Failed: 2, Rate: 0.8},
		},
		{
			name:   "all failed",
			counts: []db.StatusCount{{Status: db.LogFailed, Count: 4}},
			want:   Rate{Total: 4, Failed: 4, Rate: 0},
		},
		{
			name: "empty window",
			want: Rate{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{counts: tt.counts}
			rate, err := newTestAggregator(store).SuccessRate(context.Background(), time.Hour)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Total, rate.Total)
			assert.Equal(t, tt.want.Failed, rate.Failed)
			assert.InDelta(t, tt.want.Rate, rate.Rate, 1e-9)
			assert.Equal(t, baseTime.Add(-time.Hour), store.lastSince)
		})
	}
}

func TestWindowDefaultsAndValidation(t *testing.T) {
	store := &MockStore{}
	a := newTestAggregator(store)

	_, err := a.SuccessRate(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(-24*time.Hour), store.lastSince)

	_, err = a.SuccessRate(context.Background(), -time.Minute)
	assert.True(t, errors.Is(err, ErrInvalidWindow))
}

func TestThroughput(t *testing.T) {
	running := db.SyncSession{ID: "running", Status: db.SessionStarted, ItemsProcessed: 10}
	instant := finished("instant", 10, 0, 0)
	store := &MockStore{sessions: map[string]*db.SyncSession{
		"fast":    ptr(finished("fast", 100, 0, 10*time.Second)),
		"running": &running,
		"instant": &instant,
	}}
	a := newTestAggregator(store)

	tp, err := a.Throughput(context.Background(), "fast")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, tp, 1e-9)

	tp, err = a.Throughput(context.Background(), "running")
	require.NoError(t, err)
	assert.Zero(t, tp)

	tp, err = a.Throughput(context.Background(), "instant")
	require.NoError(t, err)
	assert.Zero(t, tp)

	_, err = a.Throughput(context.Background(), "missing")
	assert.True(t, db.IsNotFound(err))
}

func TestAverageThroughput(t *testing.T) {
	store := &MockStore{completed: []db.SyncSession{
		finished("a", 100, 0, 10*time.Second), // 10/s
		finished("b", 60, 0, 20*time.Second),  // 3/s
		finished("c", 50, 5, 10*time.Second),  // 5/s
	}}

	stats, err := newTestAggregator(store).AverageThroughput(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Sessions)
	assert.InDelta(t, 3.0, stats.Min, 1e-9)
	assert.InDelta(t, 10.0, stats.Max, 1e-9)
	assert.InDelta(t, 6.0, stats.Average, 1e-9)

	empty, err := newTestAggregator(&MockStore{}).AverageThroughput(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ThroughputStats{}, empty)
}

func TestTopFailingAndDeltasUseDefaultLimit(t *testing.T) {
	old, updated, change := 2, 9, 7
	store := &MockStore{
		failing: []db.SKUFailureCount{{SKU: "A", Failures: 3, LastMessage: "SKU not found in marketplace"}},
		deltas: []db.SyncLogEntry{
			{SessionID: "s1", SKU: "B", OldStock: &old, NewStock: &updated, Change: &change},
			{SessionID: "s1", SKU: "broken"},
		},
	}
	a := newTestAggregator(store)

	failing, err := a.TopFailingSKUs(context.Background(), time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().TopLimit, store.lastLimit)
	require.Len(t, failing, 1)
	assert.Equal(t, 3, failing[0].Failures)

	deltas, err := a.LargestDeltas(context.Background(), time.Hour, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, store.lastLimit)
	require.Len(t, deltas, 1, "rows without stock values are dropped")
	assert.Equal(t, Delta{SessionID: "s1", SKU: "B", OldStock: 2, NewStock: 9, Change: 7}, deltas[0])
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	boom := errors.New("database is locked")
	a := newTestAggregator(&MockStore{err: boom})

	_, err := a.Dashboard(context.Background(), time.Hour)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "failed to count item statuses")
}

func TestSessionSummary(t *testing.T) {
	s := finished("s1", 40, 10, 8*time.Second)
	s.ItemsSuccessful = 20
	s.ItemsSkipped = 10
	a := newTestAggregator(&MockStore{sessions: map[string]*db.SyncSession{"s1": &s}})

	report, err := a.SessionSummary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", report.ID)
	assert.Equal(t, 8*time.Second, report.Duration)
	assert.InDelta(t, 5.0, report.Throughput, 1e-9)
	assert.InDelta(t, 0.75, report.SuccessRate, 1e-9)
}

func TestDashboard_AgainstDatabase(t *testing.T) {
	database := testutil.NewDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	started := now.Add(-10 * time.Second)
	require.NoError(t, database.CreateSession(ctx, &db.SyncSession{
		ID: "dash", Kind: db.SessionKindBatch, TotalRequested: 3, TotalBatches: 1,
		Status: db.SessionPending, CreatedAt: started,
	}))
	_, err := database.MarkSessionStarted(ctx, "dash", started)
	require.NoError(t, err)

	old, newStock, change := 1, 21, 20
	entries := []db.SyncLogEntry{
		{ID: "01J0000000000000000000000A", SessionID: "dash", Type: db.LogTypeItem, SKU: "A", Status: db.LogSuccess,
			OldStock: &old, NewStock: &newStock, Change: &change, CreatedAt: now},
		{ID: "01J0000000000000000000000B", SessionID: "dash", Type: db.LogTypeItem, SKU: "B", Status: db.LogSkipped, CreatedAt: now},
		{ID: "01J0000000000000000000000C", SessionID: "dash", Type: db.LogTypeItem, SKU: "C", Status: db.LogFailed,
			Message: "SKU not found in marketplace", CreatedAt: now},
		{ID: "01J0000000000000000000000D", SessionID: "dash", Type: db.LogTypeSummary, Status: db.LogSuccess, CreatedAt: now},
	}
	require.NoError(t, database.FlushLogs(ctx, "dash", entries[:3], db.CounterDelta{Processed: 3, Successful: 1, Skipped: 1, Failed: 1}))
	require.NoError(t, database.InsertLogs(ctx, entries[3:]))
	_, err = database.FinishSession(ctx, "dash", db.SessionCompleted, nil, 1, now)
	require.NoError(t, err)

	a := NewAggregator(database, DefaultConfig())
	d, err := a.Dashboard(ctx, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "1h0m0s", d.Window)
	assert.Equal(t, 3, d.Items.Total, "summary rows are not items")
	assert.InDelta(t, 2.0/3.0, d.Items.Rate, 1e-9)
	assert.Equal(t, 1, d.Throughput.Sessions)
	assert.InDelta(t, 0.3, d.Throughput.Average, 0.05)
	require.Len(t, d.TopFailing, 1)
	assert.Equal(t, "C", d.TopFailing[0].SKU)
	require.Len(t, d.LargestDeltas, 1)
	assert.Equal(t, 20, d.LargestDeltas[0].Change)
}

func ptr[T any](v T) *T {
	return &v
}
