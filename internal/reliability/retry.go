package reliability

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, sleeping a capped exponential backoff
// between tries. fn reports whether its failure is worth another attempt;
// a non-retryable failure or context cancellation ends the loop early.
func Retry(ctx context.Context, attempts int, base, cap time.Duration, fn func() (retryable bool, err error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ExponentialBackoff(attempt, base, cap)):
			}
		}
		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return lastErr
}
