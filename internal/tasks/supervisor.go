// ABOUTME: Supervised background task execution with bounded concurrency.
// ABOUTME: Every scheduled task gets panic recovery and error logging.

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

const defaultMaxConcurrent = 64

// ErrShuttingDown is returned by Go once Shutdown has begun.
var ErrShuttingDown = errors.New("supervisor shutting down")

// Supervisor runs background tasks with a concurrency cap. A panicking
// or failing task is logged with its name; it never takes the process
// down and never escapes silently.
type Supervisor struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewSupervisor creates a supervisor allowing at most maxConcurrent
// tasks in flight. Zero or negative selects a default cap.
func NewSupervisor(maxConcurrent int64, logger *slog.Logger) *Supervisor {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		sem:     semaphore.NewWeighted(maxConcurrent),
		logger:  logger.With("component", "tasks"),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Go schedules fn to run in the background. It blocks while the
// supervisor is at its concurrency cap; ctx bounds that wait only.
// The task itself runs under the supervisor's lifetime context, which
// is cancelled by Shutdown.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.wg.Done()
		return fmt.Errorf("acquiring task slot for %s: %w", name, err)
	}

	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("task panicked",
					"task", name, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		if err := fn(s.baseCtx); err != nil {
			s.logger.Error("task failed", "task", name, "error", err)
		}
	}()

	return nil
}

// Shutdown stops accepting new tasks and waits for in-flight tasks to
// finish. If ctx expires first, the lifetime context is cancelled so
// remaining tasks abort, and the ctx error is returned.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}
