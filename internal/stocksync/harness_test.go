package stocksync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/stocksync/internal/db"
	"github.com/livinlefevreloca/stocksync/internal/queue"
	"github.com/livinlefevreloca/stocksync/internal/staging"
	"github.com/livinlefevreloca/stocksync/internal/stocksource"
	"github.com/livinlefevreloca/stocksync/internal/testutil"
)

type harness struct {
	db     *db.DB
	source *testutil.FakeSource
	cache  *staging.SQLCache
	pool   *queue.Pool
	engine *Engine
	logger *testutil.TestLogger
	config Config
}

func testSyncConfig() Config {
	config := DefaultConfig()
	config.FlushSize = 3
	config.BatchTimeout = 5 * time.Second
	config.FullTimeout = 5 * time.Second
	return config
}

func testPoolConfig() queue.Config {
	return queue.Config{
		Queues: []queue.QueueConfig{
			{Name: DefaultBatchQueue, Workers: 4, BufferSize: 100},
			{Name: DefaultFullQueue, Workers: 1, BufferSize: 10},
		},
		EnqueueTimeout: 100 * time.Millisecond,
		Retry: queue.RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2,
		},
	}
}

// newHarness wires an engine over an in-memory database and a fake source.
// The pool is started and shut down when the test ends.
func newHarness(t *testing.T, records ...stocksource.StockRecord) *harness {
	t.Helper()

	h := &harness{
		db:     testutil.NewDB(t),
		source: testutil.NewFakeSource(records...),
		logger: testutil.NewTestLogger(),
		config: testSyncConfig(),
	}
	h.cache = staging.NewSQLCache(h.db)

	pool, err := queue.NewPool(testPoolConfig(), h.logger.Logger())
	require.NoError(t, err)
	h.pool = pool
	h.engine = NewEngine(h.db, h.source, h.cache, pool, h.config, h.logger.Logger())

	pool.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Shutdown(ctx)
	})
	return h
}

// seed creates local products for skus with the given stock
func (h *harness) seed(t *testing.T, skus []string, stock map[string]int) {
	t.Helper()
	testutil.SeedProducts(t, h.db, skus, stock)
}

// waitForSession blocks until the session reaches a terminal status
func (h *harness) waitForSession(t *testing.T, id string) *db.SyncSession {
	t.Helper()

	var session *db.SyncSession
	testutil.WaitFor(t, func() bool {
		s, err := h.db.GetSession(context.Background(), id)
		if err != nil {
			return false
		}
		session = s
		return s.Terminal() && h.pool.Pending() == 0
	}, 5*time.Second, "session "+id+" to finish")
	require.NotNil(t, session)
	return session
}

func (h *harness) logs(t *testing.T, sessionID string) []db.SyncLogEntry {
	t.Helper()
	entries, err := h.db.GetSessionLogs(context.Background(), sessionID, 10000)
	require.NoError(t, err)
	return entries
}

// items returns the item rows keyed by SKU
func items(entries []db.SyncLogEntry) map[string]db.SyncLogEntry {
	out := make(map[string]db.SyncLogEntry)
	for _, e := range entries {
		if e.Type == db.LogTypeItem {
			out[e.SKU] = e
		}
	}
	return out
}

func summaries(entries []db.SyncLogEntry) []db.SyncLogEntry {
	var out []db.SyncLogEntry
	for _, e := range entries {
		if e.Type == db.LogTypeSummary {
			out = append(out, e)
		}
	}
	return out
}

// createSession inserts a pending session directly, bypassing the dispatcher
func createSession(t *testing.T, database *db.DB, id, kind string, total, batches int, dryRun bool) {
	t.Helper()
	err := database.CreateSession(context.Background(), &db.SyncSession{
		ID:             id,
		Kind:           kind,
		TotalRequested: total,
		TotalBatches:   batches,
		DryRun:         dryRun,
		Status:         db.SessionPending,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
}

// recordingEnqueuer captures jobs instead of running them
type recordingEnqueuer struct {
	jobs   []queue.Job
	failAt int
	err    error
}

func (r *recordingEnqueuer) Enqueue(ctx context.Context, job queue.Job) error {
	if r.err != nil && len(r.jobs) == r.failAt {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func intPtr(v int) *int {
	return &v
}
