package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/livinlefevreloca/stocksync/internal/metrics"
)

var (
	ErrPoolClosed   = errors.New("queue: pool is shut down")
	ErrUnknownQueue = errors.New("queue: unknown queue")
	ErrNoHandler    = errors.New("queue: no handler registered for job type")
	ErrQueueFull    = errors.New("queue: queue is full")
)

// exhaustTimeout bounds the exhausted hook, which runs detached from the pool context
const exhaustTimeout = 30 * time.Second

// QueueConfig defines one named queue
type QueueConfig struct {
	Name       string `toml:"name"`
	Workers    int    `toml:"workers"`
	BufferSize int    `toml:"buffer_size"`
}

// Config defines the worker pool
type Config struct {
	Queues         []QueueConfig `toml:"queues"`
	EnqueueTimeout time.Duration `toml:"enqueue_timeout"`
	Retry          RetryPolicy   `toml:"retry"`
}

// Validate checks the pool configuration
func (c Config) Validate() error {
	if len(c.Queues) == 0 {
		return fmt.Errorf("at least one queue must be configured")
	}
	seen := make(map[string]bool, len(c.Queues))
	for _, q := range c.Queues {
		if q.Name == "" {
			return fmt.Errorf("queue name must not be empty")
		}
		if seen[q.Name] {
			return fmt.Errorf("duplicate queue %q", q.Name)
		}
		seen[q.Name] = true
		if q.Workers <= 0 {
			return fmt.Errorf("queue %q: workers must be positive, got %d", q.Name, q.Workers)
		}
		if q.BufferSize <= 0 {
			return fmt.Errorf("queue %q: buffer_size must be positive, got %d", q.Name, q.BufferSize)
		}
	}
	if c.EnqueueTimeout <= 0 {
		return fmt.Errorf("enqueue_timeout must be positive, got %v", c.EnqueueTimeout)
	}
	return c.Retry.Validate()
}

// Pool executes jobs from its queues with a fixed number of workers per queue
type Pool struct {
	config Config
	logger *slog.Logger

	inboxes   map[string]*Inbox[Job]
	handlers  map[string]Handler
	exhausted map[string]ExhaustedFunc
	inFlight  atomic.Int64

	mu      sync.RWMutex
	closed  bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool. Handlers must be registered before Start.
func NewPool(config Config, logger *slog.Logger) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid queue config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config:    config,
		logger:    logger,
		inboxes:   make(map[string]*Inbox[Job], len(config.Queues)),
		handlers:  make(map[string]Handler),
		exhausted: make(map[string]ExhaustedFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, q := range config.Queues {
		p.inboxes[q.Name] = NewInbox[Job](q.BufferSize, config.EnqueueTimeout, logger.With("queue", q.Name))
	}
	return p, nil
}

// Register sets the handler for a job type
func (p *Pool) Register(jobType string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobType] = handler
}

// OnExhausted sets the hook run when a job of jobType fails its last attempt
func (p *Pool) OnExhausted(jobType string, fn ExhaustedFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exhausted[jobType] = fn
}

// Enqueue places job on its queue
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	inbox, ok := p.inboxes[job.Queue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, job.Queue)
	}
	if _, ok := p.handlers[job.Type]; !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
	}

	if job.MaxAttempts <= 0 {
		job.MaxAttempts = p.config.Retry.MaxAttempts
	}
	job.Attempt = 0
	job.EnqueuedAt = time.Now().UTC()

	// counted before the send so Pending never misses a job between queue and worker
	p.inFlight.Add(1)
	if !inbox.Send(job) {
		p.inFlight.Add(-1)
		return fmt.Errorf("%w: %s", ErrQueueFull, job.Queue)
	}
	metrics.SetQueueDepth(job.Queue, inbox.Len())

	p.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_type", job.Type,
		"queue", job.Queue)
	return nil
}

// Start launches the workers of every queue
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	for _, q := range p.config.Queues {
		inbox := p.inboxes[q.Name]
		for i := 0; i < q.Workers; i++ {
			p.wg.Add(1)
			go p.runWorker(q.Name, inbox)
		}
		p.logger.Info("queue started", "queue", q.Name, "workers", q.Workers)
	}
}

// Pending returns the number of jobs queued or running
func (p *Pool) Pending() int {
	return int(p.inFlight.Load())
}

// Stats returns per-queue inbox statistics
func (p *Pool) Stats() map[string]InboxStats {
	stats := make(map[string]InboxStats, len(p.inboxes))
	for name, inbox := range p.inboxes {
		stats[name] = inbox.GetStats()
	}
	return stats
}

// Shutdown stops accepting jobs and waits for the workers to drain the queues.
// If ctx ends first, running attempts are cancelled and Shutdown waits for
// their handlers to return.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, inbox := range p.inboxes {
		inbox.Close()
	}
	p.mu.Unlock()

	p.logger.Info("starting queue shutdown", "pending", p.Pending())

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("queue shutdown complete")
		return nil
	case <-ctx.Done():
		p.logger.Warn("shutdown deadline reached, cancelling running jobs", "pending", p.Pending())
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) runWorker(queue string, inbox *Inbox[Job]) {
	defer p.wg.Done()

	for {
		job, ok := inbox.Receive()
		if !ok {
			p.logger.Debug("worker exiting", "queue", queue)
			return
		}
		metrics.SetQueueDepth(queue, inbox.Len())
		p.process(job)
		p.inFlight.Add(-1)
	}
}

// process runs job until it succeeds, fails permanently or runs out of attempts
func (p *Pool) process(job Job) {
	p.mu.RLock()
	handler := p.handlers[job.Type]
	p.mu.RUnlock()

	logger := p.logger.With("job_id", job.ID, "job_type", job.Type, "queue", job.Queue)

	for {
		job.Attempt++
		start := time.Now()
		err := p.attempt(handler, job)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			metrics.RecordJob(job.Queue, job.Type, "ok", elapsed)
			logger.Debug("job succeeded", "attempt", job.Attempt, "duration", elapsed)
			return

		case IsPermanent(err):
			metrics.RecordJob(job.Queue, job.Type, "failed", elapsed)
			logger.Error("job failed permanently", "attempt", job.Attempt, "error", err)
			return

		case job.Attempt >= job.MaxAttempts:
			metrics.RecordJob(job.Queue, job.Type, "exhausted", elapsed)
			logger.Error("job retries exhausted", "attempts", job.Attempt, "error", err)
			p.exhaust(job, err)
			return
		}

		delay := p.config.Retry.Backoff(job.Attempt)
		metrics.RecordJob(job.Queue, job.Type, "retry", elapsed)
		logger.Warn("job attempt failed, retrying",
			"attempt", job.Attempt,
			"max_attempts", job.MaxAttempts,
			"backoff", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-p.ctx.Done():
			timer.Stop()
		}
	}
}

func (p *Pool) attempt(handler Handler, job Job) (err error) {
	ctx := p.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	return handler(ctx, job)
}

func (p *Pool) exhaust(job Job, lastErr error) {
	p.mu.RLock()
	fn := p.exhausted[job.Type]
	p.mu.RUnlock()
	if fn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), exhaustTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("exhausted hook panicked", "job_id", job.ID, "panic", r)
		}
	}()
	fn(ctx, job, lastErr)
}
