package embedder

import (
	"context"
	"time"
)

// Backoff parameters for remote API calls.
const (
	maxAttempts    = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// withRetries runs fn up to maxAttempts times, doubling the delay between
// attempts. Context cancellation stops the loop immediately.
func withRetries[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := initialBackoff
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	return zero, lastErr
}
