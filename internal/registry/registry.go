// ABOUTME: Cross-process connection registry tracking which sessions hold a live channel.
// ABOUTME: Shared membership lives in Redis; the channel handle itself is process-local.

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// activeSessionsKey is the Redis hash holding one liveness entry per
// connected session, shared by every gateway instance.
const activeSessionsKey = "active_sessions"

// ErrStoreUnavailable indicates the shared store could not be reached.
// Callers must not interpret this as "session inactive".
var ErrStoreUnavailable = errors.New("shared connection store unavailable")

// Entry is the liveness marker stored per session in the shared store.
type Entry struct {
	ConnectedAt string `json:"connected_at"`
	Status      string `json:"status"`
}

// Event is the outbound envelope pushed over a session's channel.
type Event struct {
	Type       string `json:"type"`
	TaskStatus string `json:"task_status,omitempty"`
	Content    any    `json:"content"`
}

// Event types.
const (
	EventTypeDebug                 = "debug"
	EventTypeAssistantMessage      = "assistant_message"
	EventTypeToolResult            = "tool_result"
	EventTypeError                 = "error"
	EventTypeTaskComplete          = "task_complete"
	EventTypeConnectionEstablished = "connection_established"
)

// Task statuses carried alongside event types.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusError     = "error"
)

// Channel is a live push channel to one connected client. Send must be
// safe for concurrent use and must never interleave payloads.
type Channel interface {
	Send(payload []byte) error
	Close() error
}

// SharedStore is the cross-process membership view. The production
// implementation is a Redis hash; tests substitute an in-memory fake.
type SharedStore interface {
	Set(ctx context.Context, sessionID, entry string) error
	Delete(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	All(ctx context.Context) (map[string]string, error)
	Ping(ctx context.Context) error
}

// Registry tracks live channels. Authoritative membership is the shared
// store; only the process that accepted a connection can push to it.
type Registry struct {
	shared SharedStore
	logger *slog.Logger

	mu    sync.RWMutex
	local map[string]Channel
}

// New creates a registry over the given shared store.
func New(shared SharedStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		shared: shared,
		local:  make(map[string]Channel),
		logger: logger.With("component", "registry"),
	}
}

// AddConnection registers the channel locally and writes the liveness
// entry to the shared store. Last writer wins on a racing add for the
// same session id.
func (r *Registry) AddConnection(ctx context.Context, sessionID string, ch Channel) error {
	r.mu.Lock()
	r.local[sessionID] = ch
	r.mu.Unlock()

	entry, err := json.Marshal(Entry{
		ConnectedAt: time.Now().Format(time.RFC3339),
		Status:      "connected",
	})
	if err != nil {
		return fmt.Errorf("serializing liveness entry: %w", err)
	}

	if err := r.shared.Set(ctx, sessionID, string(entry)); err != nil {
		// Undo the local insert so this process never holds a channel
		// the shared store doesn't know about.
		r.mu.Lock()
		if r.local[sessionID] == ch {
			delete(r.local, sessionID)
		}
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	r.logger.Info("connection added", "session_id", sessionID)
	return nil
}

// RemoveConnection deletes the local entry and the shared-store entry.
// Safe to call multiple times; both deletes are no-ops when absent.
func (r *Registry) RemoveConnection(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.local, sessionID)
	r.mu.Unlock()

	if err := r.shared.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	r.logger.Info("connection removed", "session_id", sessionID)
	return nil
}

// GetConnection returns the locally held channel, if this process holds
// one. Another process may hold the session's channel instead.
func (r *Registry) GetConnection(sessionID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.local[sessionID]
	return ch, ok
}

// IsSessionActive reports whether any process has registered the session
// in the shared store. A store failure surfaces as an error rather than
// a false "inactive".
func (r *Registry) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	active, err := r.shared.Exists(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return active, nil
}

// SendToSession pushes an event to the session's channel if this process
// holds it. Returns false when the channel is absent or the send fails;
// a failed send deregisters the connection so later attempts fail fast.
func (r *Registry) SendToSession(ctx context.Context, sessionID string, event Event) bool {
	ch, ok := r.GetConnection(sessionID)
	if !ok {
		return false
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("serializing event", "session_id", sessionID, "error", err)
		return false
	}

	if err := ch.Send(payload); err != nil {
		r.logger.Error("sending to session", "session_id", sessionID, "error", err)
		if rmErr := r.RemoveConnection(ctx, sessionID); rmErr != nil {
			r.logger.Error("removing broken connection", "session_id", sessionID, "error", rmErr)
		}
		return false
	}
	return true
}

// ActiveSessions returns the shared store's full membership. Malformed
// entries are skipped and logged, never propagated as failures.
func (r *Registry) ActiveSessions(ctx context.Context) (map[string]Entry, error) {
	raw, err := r.shared.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessions := make(map[string]Entry, len(raw))
	for sessionID, value := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			r.logger.Warn("skipping malformed registry entry",
				"session_id", sessionID, "error", err)
			continue
		}
		sessions[sessionID] = entry
	}
	return sessions, nil
}

// Ping verifies the shared store is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	if err := r.shared.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RedisStore implements SharedStore on a Redis hash.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis at the given address.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewRedisStoreFromURL connects using a redis:// URL.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func (s *RedisStore) Set(ctx context.Context, sessionID, entry string) error {
	return s.client.HSet(ctx, activeSessionsKey, sessionID, entry).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.HDel(ctx, activeSessionsKey, sessionID).Err()
}

func (s *RedisStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	return s.client.HExists(ctx, activeSessionsKey, sessionID).Result()
}

func (s *RedisStore) All(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, activeSessionsKey).Result()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
