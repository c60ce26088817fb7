// ABOUTME: Bounded-retry combinator for the agent invocation call site.
// ABOUTME: Centralizes the retry policy so it is testable in isolation.

package engine

import (
	"context"
	"log/slog"
	"time"
)

// Retry runs op up to attempts times, sleeping delay between attempts.
// It returns the first success or the last error. Context cancellation
// aborts the wait and returns the context error. Attempts below one are
// treated as one, so op always runs at least once.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, logger *slog.Logger, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.Error("attempt failed", "attempt", i+1, "max_attempts", attempts, "error", err)

		if i == attempts-1 || delay <= 0 {
			continue
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
