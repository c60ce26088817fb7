// ABOUTME: Tests for the bounded-retry combinator.
// ABOUTME: Covers success, exhaustion, attempt counting, and cancellation.

package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	result, err := Retry(context.Background(), 3, 0, slog.Default(), func() (string, error) {
		attempts++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
}

func TestRetry_EventualSuccess(t *testing.T) {
	attempts := 0
	result, err := Retry(context.Background(), 3, 0, slog.Default(), func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustionReturnsLastError(t *testing.T) {
	attempts := 0
	lastErr := errors.New("attempt 3")
	_, err := Retry(context.Background(), 3, 0, slog.Default(), func() (int, error) {
		attempts++
		if attempts == 3 {
			return 0, lastErr
		}
		return 0, errors.New("earlier")
	})

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, lastErr)
}

func TestRetry_NonPositiveAttemptsRunsOnce(t *testing.T) {
	for _, attempts := range []int{0, -1} {
		calls := 0
		opErr := errors.New("still fails")
		_, err := Retry(context.Background(), attempts, 0, slog.Default(), func() (int, error) {
			calls++
			return 0, opErr
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, opErr)
	}
}

func TestRetry_ContextCancellationDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, 5, time.Minute, slog.Default(), func() (int, error) {
		attempts++
		return 0, errors.New("always fails")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
