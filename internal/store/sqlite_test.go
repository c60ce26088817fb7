// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers session CRUD, message persistence, batch transactions, and ordering

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func newTestSession(t *testing.T, store *SQLiteStore, id string) *Session {
	t.Helper()
	session := &Session{
		ID:        id,
		Status:    SessionStatusActive,
		Metadata:  map[string]any{},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	session := &Session{
		ID:        "session-123",
		Status:    SessionStatusActive,
		Metadata:  map[string]any{"client": "web"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}

	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "session-123")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	if got.ID != session.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, session.ID)
	}
	if got.Status != SessionStatusActive {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, SessionStatusActive)
	}
	if got.Metadata["client"] != "web" {
		t.Errorf("Metadata mismatch: got %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(session.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, session.CreatedAt)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetSession(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSessionStatus(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	newTestSession(t, store, "session-1")

	if err := store.UpdateSessionStatus(ctx, "session-1", SessionStatusInactive); err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}

	got, err := store.GetSession(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != SessionStatusInactive {
		t.Errorf("Status mismatch: got %q, want %q", got.Status, SessionStatusInactive)
	}
}

func TestUpdateSessionStatus_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.UpdateSessionStatus(context.Background(), "nonexistent", SessionStatusInactive)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	for i := 0; i < 3; i++ {
		newTestSession(t, store, fmt.Sprintf("session-%d", i))
	}

	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(sessions))
	}
}

func TestSaveAndGetMessages(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	newTestSession(t, store, "session-1")

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		msg := &Message{
			ID:        fmt.Sprintf("msg-%d", i),
			SessionID: "session-1",
			Role:      RoleUser,
			Content:   fmt.Sprintf(`[{"type":"text","text":"message %d"}]`, i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := store.GetSessionMessages(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSessionMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.ID != fmt.Sprintf("msg-%d", i) {
			t.Errorf("message %d out of order: got %q", i, msg.ID)
		}
		if msg.Type != MessageTypeText {
			t.Errorf("message %d type: got %q, want %q", i, msg.Type, MessageTypeText)
		}
	}
}

func TestGetSessionMessages_OrderedByTimestamp(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	newTestSession(t, store, "session-1")

	// Insert out of timestamp order; retrieval must sort
	base := time.Now().UTC().Truncate(time.Second)
	offsets := []int{5, 1, 3, 0, 4}
	for i, off := range offsets {
		msg := &Message{
			ID:        fmt.Sprintf("msg-%d", i),
			SessionID: "session-1",
			Role:      RoleAssistant,
			Content:   `[{"type":"text","text":"x"}]`,
			Timestamp: base.Add(time.Duration(off) * time.Second),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := store.GetSessionMessages(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSessionMessages failed: %v", err)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("messages not in non-decreasing timestamp order at %d", i)
		}
	}
}

func TestGetSessionMessages_Empty(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	newTestSession(t, store, "session-1")

	msgs, err := store.GetSessionMessages(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("GetSessionMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestSaveMessages_Batch(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	newTestSession(t, store, "session-1")

	now := time.Now().UTC().Truncate(time.Second)
	msgs := []*Message{
		{ID: "msg-0", SessionID: "session-1", Role: RoleAssistant, Content: `[{"type":"text","text":"a"}]`, Timestamp: now},
		{ID: "msg-1", SessionID: "session-1", Role: RoleTool, Content: `[{"type":"tool_result","output":"b"}]`, Timestamp: now.Add(time.Second)},
	}

	if err := store.SaveMessages(ctx, msgs); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}

	got, err := store.GetSessionMessages(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSessionMessages failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
}

func TestSaveMessages_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	newTestSession(t, store, "session-1")

	now := time.Now().UTC()
	if err := store.SaveMessage(ctx, &Message{
		ID: "dup", SessionID: "session-1", Role: RoleUser,
		Content: `[{"type":"text","text":"x"}]`, Timestamp: now,
	}); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	// Second element violates the primary key, so the first must roll back too
	msgs := []*Message{
		{ID: "new", SessionID: "session-1", Role: RoleAssistant, Content: `[]`, Timestamp: now},
		{ID: "dup", SessionID: "session-1", Role: RoleAssistant, Content: `[]`, Timestamp: now},
	}
	if err := store.SaveMessages(ctx, msgs); err == nil {
		t.Fatal("expected batch insert to fail")
	}

	got, err := store.GetSessionMessages(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetSessionMessages failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected only the original message after rollback, got %d", len(got))
	}
}

func TestSaveMessages_EmptyBatch(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.SaveMessages(context.Background(), nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
