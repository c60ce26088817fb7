// ABOUTME: Tests for the background task supervisor.
// ABOUTME: Covers concurrency caps, panic recovery, and shutdown draining.

package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_RunsTask(t *testing.T) {
	s := NewSupervisor(4, nil)
	defer s.Shutdown(context.Background())

	done := make(chan struct{})
	err := s.Go(context.Background(), "test", func(ctx context.Context) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestSupervisor_ConcurrencyCap(t *testing.T) {
	s := NewSupervisor(2, nil)
	defer s.Shutdown(context.Background())

	var running, peak int64
	var mu sync.Mutex
	release := make(chan struct{})

	for i := 0; i < 5; i++ {
		go func() {
			_ = s.Go(context.Background(), "capped", func(ctx context.Context) error {
				n := atomic.AddInt64(&running, 1)
				mu.Lock()
				if n > peak {
					peak = n
				}
				mu.Unlock()
				<-release
				atomic.AddInt64(&running, -1)
				return nil
			})
		}()
	}

	// Let the first two tasks start and the rest queue on the semaphore
	time.Sleep(100 * time.Millisecond)
	close(release)
	require.NoError(t, s.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(2))
}

func TestSupervisor_PanicDoesNotEscape(t *testing.T) {
	s := NewSupervisor(1, nil)

	err := s.Go(context.Background(), "panicky", func(ctx context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	// Shutdown returning means the panicking task was recovered and
	// released its slot.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

func TestSupervisor_TaskErrorIsSwallowed(t *testing.T) {
	s := NewSupervisor(1, nil)

	err := s.Go(context.Background(), "failing", func(ctx context.Context) error {
		return errors.New("task error")
	})
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestSupervisor_RejectsAfterShutdown(t *testing.T) {
	s := NewSupervisor(1, nil)
	require.NoError(t, s.Shutdown(context.Background()))

	err := s.Go(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestSupervisor_ShutdownWaitsForInFlight(t *testing.T) {
	s := NewSupervisor(1, nil)

	var finished atomic.Bool
	started := make(chan struct{})
	require.NoError(t, s.Go(context.Background(), "slow", func(ctx context.Context) error {
		close(started)
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
		return nil
	}))
	<-started

	require.NoError(t, s.Shutdown(context.Background()))
	assert.True(t, finished.Load())
}

func TestSupervisor_ShutdownDeadlineCancelsTasks(t *testing.T) {
	s := NewSupervisor(1, nil)

	cancelled := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Go(context.Background(), "stuck", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	require.Error(t, err)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("task context never cancelled")
	}
}
