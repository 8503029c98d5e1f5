// Package queue runs typed jobs on named in-process queues.
//
// Each queue is served by a fixed number of workers. A failed attempt is
// retried with exponential backoff until the job's attempt budget is spent,
// unless the handler marked the error Permanent. Jobs whose retries run out are
// handed to the exhausted hook registered for their type.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Job is one unit of work
type Job struct {
	ID          string
	Type        string
	Queue       string
	Payload     json.RawMessage
	Timeout     time.Duration
	Attempt     int
	MaxAttempts int
	EnqueuedAt  time.Time
}

// NewJob creates a job with a fresh ID and payload encoded as JSON
func NewJob(jobType, queue string, payload any, timeout time.Duration) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}

	return Job{
		ID:      ulid.Make().String(),
		Type:    jobType,
		Queue:   queue,
		Payload: raw,
		Timeout: timeout,
	}, nil
}

// Decode unmarshals the job payload into v
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("failed to decode %s payload: %w", j.Type, err))
	}
	return nil
}

// Enqueuer accepts jobs for asynchronous execution
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler executes one attempt of a job
type Handler func(ctx context.Context, job Job) error

// ExhaustedFunc runs once a job failed its last attempt
type ExhaustedFunc func(ctx context.Context, job Job, lastErr error)
