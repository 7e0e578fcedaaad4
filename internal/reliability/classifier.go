// Package reliability classifies provider failures and computes retry
// backoff for the HTTP clients talking to external services.
package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes. Rate limits,
// timeouts, and upstream 5xx responses are worth one more try; everything
// else reflects the request itself and is not.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
