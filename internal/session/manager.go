// ABOUTME: Session lifecycle facade over durable session/message storage.
// ABOUTME: Owns id generation, role mapping, ordering, and status transitions.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/relay-gateway/internal/agent"
	"github.com/2389/relay-gateway/internal/store"
)

// Manager is the facade over session and message persistence. It carries
// no business logic beyond id generation, ordering, and status handling;
// storage errors propagate to the caller.
type Manager struct {
	store  store.Store
	logger *slog.Logger
}

// NewManager creates a session manager backed by the given store.
func NewManager(s store.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  s,
		logger: logger.With("component", "session-manager"),
	}
}

// CreateSession allocates a new session id, persists the session with
// status active, and returns the id.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	now := time.Now()
	session := &store.Session{
		ID:        uuid.New().String(),
		Status:    store.SessionStatusActive,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}

	m.logger.Info("session created", "session_id", session.ID)
	return session.ID, nil
}

// GetSession returns the session or store.ErrNotFound.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// ListSessions returns all sessions.
func (m *Manager) ListSessions(ctx context.Context) ([]*store.Session, error) {
	return m.store.ListSessions(ctx)
}

// GetMessages returns the session's messages in canonical conversation
// order (timestamp ascending).
func (m *Manager) GetMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	return m.store.GetSessionMessages(ctx, sessionID)
}

// History returns the session's messages converted to structured turns
// in canonical conversation order, ready to feed a sampling loop.
func (m *Manager) History(ctx context.Context, sessionID string) ([]agent.Turn, error) {
	msgs, err := m.store.GetSessionMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session history: %w", err)
	}

	turns := make([]agent.Turn, 0, len(msgs))
	for _, msg := range msgs {
		turns = append(turns, agent.Turn{
			Role:    turnRole(msg.Role),
			Content: agent.ParseContent(msg.Content),
		})
	}
	return turns, nil
}

// AddUserMessage wraps free text as a single-block structured content
// value and persists it with the user role.
func (m *Manager) AddUserMessage(ctx context.Context, sessionID, text string) (*store.Message, error) {
	content, err := agent.MarshalContent([]agent.Block{agent.TextBlock{Text: text}})
	if err != nil {
		return nil, fmt.Errorf("serializing user message: %w", err)
	}
	return m.AddMessage(ctx, sessionID, store.RoleUser, content)
}

// AddMessage constructs and persists one message with a fresh id and the
// current timestamp.
func (m *Manager) AddMessage(ctx context.Context, sessionID, role, content string) (*store.Message, error) {
	msg := &store.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Type:      store.MessageTypeText,
		Timestamp: time.Now(),
	}
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	m.logger.Debug("message saved", "message_id", msg.ID, "session_id", sessionID, "role", role)
	return msg, nil
}

// AddMessagesBatch validates and persists externally-produced turns in a
// single transaction. A validation failure on any element rejects the
// whole batch, returning an empty slice and nil error so the caller can
// retry element by element. Storage failures return the error.
func (m *Manager) AddMessagesBatch(ctx context.Context, sessionID string, turns []agent.Turn) ([]*store.Message, error) {
	if sessionID == "" {
		m.logger.Warn("rejecting batch with empty session id")
		return nil, nil
	}
	if len(turns) == 0 {
		return nil, nil
	}

	msgs := make([]*store.Message, 0, len(turns))
	base := time.Now()
	for i, turn := range turns {
		if len(turn.Content) == 0 {
			m.logger.Warn("rejecting batch: turn missing content",
				"session_id", sessionID, "index", i)
			return nil, nil
		}
		content, err := agent.MarshalContent(turn.Content)
		if err != nil {
			m.logger.Warn("rejecting batch: turn content not serializable",
				"session_id", sessionID, "index", i, "error", err)
			return nil, nil
		}

		msgs = append(msgs, &store.Message{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			Role:      mapRole(turn.Role),
			Content:   content,
			Type:      store.MessageTypeText,
			// Preserve emission order for equal-clock inserts
			Timestamp: base.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := m.store.SaveMessages(ctx, msgs); err != nil {
		return nil, fmt.Errorf("saving message batch: %w", err)
	}

	m.logger.Info("message batch saved", "session_id", sessionID, "count", len(msgs))
	return msgs, nil
}

// UpdateSessionStatus persists the new status; used on channel open/close.
func (m *Manager) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	return m.store.UpdateSessionStatus(ctx, sessionID, status)
}

// mapRole maps an externally-produced turn role onto a stored role:
// assistant turns keep the assistant role, anything else is a tool turn.
func mapRole(role string) string {
	if role == agent.RoleAssistant {
		return store.RoleAssistant
	}
	return store.RoleTool
}

// turnRole maps a stored role back onto a turn role. Tool results ride
// in user turns on the wire, so only assistant keeps its own role.
func turnRole(role string) string {
	if role == store.RoleAssistant {
		return agent.RoleAssistant
	}
	if role == store.RoleTool {
		return agent.RoleTool
	}
	return agent.RoleUser
}
