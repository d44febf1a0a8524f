// Package queue provides the durable, priority-ordered, at-least-once job
// queue feeding the dispatch workers. One logical queue exists per channel;
// ordering is FIFO within a priority level.
package queue

import (
	"context"
	"errors"
	"time"
)

// Default retry policy: three attempts with exponential backoff starting at
// two seconds (2s, 4s, 8s between attempts).
const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 2 * time.Second
)

// Retention of finished jobs for inspection. The message log remains the
// authoritative record; these are operational convenience only.
const (
	KeepCompleted = 100
	KeepDead      = 50
)

var (
	ErrNotFound = errors.New("queue: job not found")
	ErrClosed   = errors.New("queue: closed")
)

// Job is one queued unit of work: a single recipient+channel dispatch.
type Job struct {
	ID          string
	Channel     string
	Payload     []byte
	Priority    int
	Attempts    int
	MaxAttempts int
	EnqueuedAt  time.Time
}

// Queue is the producer/consumer contract. Enqueue is the only producer
// operation exposed to the API boundary; delivery to a worker is
// at-least-once, so handlers must stay idempotent via the status tracker.
type Queue interface {
	// Enqueue adds one job and returns its id (assigned when empty).
	Enqueue(ctx context.Context, job Job) (string, error)
	// EnqueueBulk adds jobs preserving order and returns their ids.
	EnqueueBulk(ctx context.Context, jobs []Job) ([]string, error)
	// Claim blocks until a job for the channel is ready or ctx is done.
	// The returned job's Attempts already counts the claim in progress.
	Claim(ctx context.Context, channel string) (Job, error)
	// Complete settles a claimed job as succeeded.
	Complete(ctx context.Context, job Job) error
	// Fail settles a claimed job as failed. Until MaxAttempts is reached it
	// is re-queued and becomes claimable again at retryAt; afterwards it
	// moves to the dead set.
	Fail(ctx context.Context, job Job, retryAt time.Time) error
	// Depth reports jobs currently waiting (not claimed, not settled).
	Depth(ctx context.Context, channel string) (int, error)
	// Trim evicts finished jobs beyond the retention counts.
	Trim(ctx context.Context, keepCompleted, keepDead int) error
}

// RetryDelay returns the backoff to wait after the given failed attempt
// (1-based): base, 2*base, 4*base, ...
func RetryDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBaseBackoff
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
