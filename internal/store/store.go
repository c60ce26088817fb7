// ABOUTME: Store interface and data types for relay-gateway persistence
// ABOUTME: Defines Session, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Session status constants
const (
	SessionStatusActive   = "active"
	SessionStatusInactive = "inactive"
)

// Message role constants. The agent side of a conversation persists as
// either "assistant" or "tool" depending on who produced the turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// MessageTypeText is the default message kind.
const MessageTypeText = "text"

// Session represents one conversation between a client and the agent.
// Status tracks whether a live channel is currently registered; the
// connection registry is the source of truth, this column trails it.
type Session struct {
	ID        string
	Status    string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a single message within a session's ordered log.
// Content holds the JSON serialization of the structured content blocks.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Type      string // defaults to "text"
	Timestamp time.Time
}

// Store defines the interface for session and message persistence
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	UpdateSessionStatus(ctx context.Context, id, status string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	// SaveMessages persists all messages in a single transaction.
	// Either every message is written or none are.
	SaveMessages(ctx context.Context, msgs []*Message) error
	// GetSessionMessages returns the session's messages ordered by
	// timestamp ascending. This is the canonical conversation order.
	GetSessionMessages(ctx context.Context, sessionID string) ([]*Message, error)

	// Ping verifies the underlying database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
