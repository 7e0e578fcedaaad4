package jobs

import (
	"context"
	"time"
)

// Store persists jobs. Claim is the only transition guarded against
// concurrent workers; every other mutation is owner-scoped.
type Store interface {
	Create(ctx context.Context, j Job) error
	Get(ctx context.Context, userID, id string) (Job, error)

	// OldestPending returns the next job a worker should pick up, or
	// ErrNotFound when the queue is empty.
	OldestPending(ctx context.Context) (Job, error)

	// Claim transitions a job from pending to processing. A false return
	// means another worker already holds it.
	Claim(ctx context.Context, id string, at time.Time) (bool, error)

	MarkCompleted(ctx context.Context, id, meditationID string, at time.Time) (Job, error)
	MarkFailed(ctx context.Context, id, errorMessage string, at time.Time) (Job, error)

	// Retry resets a failed job to pending, incrementing its retry count.
	// Returns ErrRetryExhausted past maxRetries and ErrNotRetryable for any
	// non-failed status.
	Retry(ctx context.Context, userID, id string, maxRetries int) (Job, error)

	// Delete removes a job in any non-processing state. Returns
	// ErrJobProcessing while a worker holds it.
	Delete(ctx context.Context, userID, id string) error

	PendingCount(ctx context.Context) (int, error)
	Close() error
}
