package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/twinforge/twinforge/pkg/types"
)

// Policy is the per-queue retry and throughput policy.
type Policy struct {
	// Concurrency is the worker pool size for the queue.
	Concurrency int
	// RateLimit caps processed jobs to RateLimit per RatePeriod; zero
	// means unlimited.
	RateLimit  int
	RatePeriod time.Duration
	// Attempts is the total number of tries a job gets, including the
	// first.
	Attempts int
	// Backoff is the base of the exponential retry backoff.
	Backoff time.Duration
}

// DefaultPolicies returns the retention defaults of the four queues.
func DefaultPolicies() map[types.QueueName]Policy {
	return map[types.QueueName]Policy{
		types.QueueCollectors: {Concurrency: 5, RateLimit: 10, RatePeriod: time.Minute, Attempts: 3, Backoff: 2 * time.Second},
		types.QueueHarvesters: {Concurrency: 3, RateLimit: 20, RatePeriod: time.Minute, Attempts: 5, Backoff: 5 * time.Second},
		types.QueuePriority:   {Concurrency: 1, Attempts: 2, Backoff: time.Second},
		types.QueueUploads:    {Concurrency: 2, RateLimit: 5, RatePeriod: time.Minute, Attempts: 1},
	}
}

// Job is one in-flight unit pulled from a queue. Jobs are owned by the
// queue and are not persisted by the engine.
type Job struct {
	ID          string          `json:"id"`
	Queue       types.QueueName `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     time.Duration   `json:"backoff"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
}

// Handler processes one job. A returned error sends the job through the
// queue's retry policy.
type Handler func(ctx context.Context, job *Job) error

// Stats reports the observable depth of one queue.
type Stats struct {
	Ready     int64 `json:"ready"`
	Delayed   int64 `json:"delayed"`
	Repeating int   `json:"repeating"`
}

// Queue is the abstract job transport consumed by the scheduler.
// Implementations must be safe for concurrent use.
type Queue interface {
	// UpsertRepeating registers or replaces a cron-pattern job keyed by
	// jobName on the given queue.
	UpsertRepeating(ctx context.Context, queue types.QueueName, jobName, cronPattern string, payload interface{}) error

	// Enqueue pushes a one-shot job.
	Enqueue(ctx context.Context, queue types.QueueName, jobName string, payload interface{}, opts ...EnqueueOption) error

	// Consume starts the worker pool for a queue. It may be called at most
	// once per queue.
	Consume(queue types.QueueName, handler Handler) error

	// Stats returns per-queue depth counters.
	Stats(ctx context.Context) (map[types.QueueName]Stats, error)

	// Close drains the workers, force-disconnecting the transport when the
	// graceful close exceeds its grace period. Safe to call more than once.
	Close(ctx context.Context) error
}

type enqueueOptions struct {
	attempts int
	backoff  time.Duration
	delay    time.Duration
}

// EnqueueOption overrides the queue policy for one job.
type EnqueueOption func(*enqueueOptions)

// WithAttempts overrides the job's total attempt count.
func WithAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) { o.attempts = n }
}

// WithBackoff overrides the job's retry backoff base.
func WithBackoff(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.backoff = d }
}

// WithDelay defers the job's first execution.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) { o.delay = d }
}
