// ABOUTME: Tests for the session lifecycle manager facade.
// ABOUTME: Covers user message wrapping, batch validation, and role mapping.

package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-gateway/internal/agent"
	"github.com/2389/relay-gateway/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewManager(s, nil), s
}

func TestCreateSession(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	session, err := mgr.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionStatusActive, session.Status)
}

func TestGetSession_NotFound(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.GetSession(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddUserMessage_WrapsTextBlock(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	msg, err := mgr.AddUserMessage(ctx, sessionID, "Hello")
	require.NoError(t, err)

	assert.Equal(t, store.RoleUser, msg.Role)
	assert.JSONEq(t, `[{"type":"text","text":"Hello"}]`, msg.Content)
}

func TestAddMessagesBatch_ValidTurns(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	turns := []agent.Turn{
		{Role: agent.RoleAssistant, Content: []agent.Block{agent.TextBlock{Text: "hi"}}},
		{Role: agent.RoleTool, Content: []agent.Block{agent.ToolResultBlock{ToolUseID: "t1", Output: "done"}}},
	}

	saved, err := mgr.AddMessagesBatch(ctx, sessionID, turns)
	require.NoError(t, err)
	require.Len(t, saved, 2)

	assert.Equal(t, sessionID, saved[0].SessionID)
	assert.Equal(t, store.RoleAssistant, saved[0].Role)
	assert.Equal(t, store.RoleTool, saved[1].Role)
}

func TestAddMessagesBatch_MapsUnknownRoleToTool(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	saved, err := mgr.AddMessagesBatch(ctx, sessionID, []agent.Turn{
		{Role: "something-else", Content: []agent.Block{agent.TextBlock{Text: "x"}}},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, store.RoleTool, saved[0].Role)
}

func TestAddMessagesBatch_EmptyInput(t *testing.T) {
	mgr, _ := newTestManager(t)

	saved, err := mgr.AddMessagesBatch(context.Background(), "some-session", nil)
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestAddMessagesBatch_EmptySessionID(t *testing.T) {
	mgr, _ := newTestManager(t)

	saved, err := mgr.AddMessagesBatch(context.Background(), "", []agent.Turn{
		{Role: agent.RoleAssistant, Content: []agent.Block{agent.TextBlock{Text: "x"}}},
	})
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestAddMessagesBatch_InvalidElementRejectsWholeBatch(t *testing.T) {
	mgr, s := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	turns := []agent.Turn{
		{Role: agent.RoleAssistant, Content: []agent.Block{agent.TextBlock{Text: "valid"}}},
		{Role: agent.RoleAssistant}, // missing content
	}

	saved, err := mgr.AddMessagesBatch(ctx, sessionID, turns)
	require.NoError(t, err)
	assert.Empty(t, saved)

	// No partial writes
	msgs, err := s.GetSessionMessages(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGetMessages_CanonicalOrder(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	_, err = mgr.AddUserMessage(ctx, sessionID, "first")
	require.NoError(t, err)
	_, err = mgr.AddMessagesBatch(ctx, sessionID, []agent.Turn{
		{Role: agent.RoleAssistant, Content: []agent.Block{agent.TextBlock{Text: "second"}}},
	})
	require.NoError(t, err)

	msgs, err := mgr.GetMessages(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var first []map[string]any
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Content), &first))
	assert.Equal(t, "first", first[0]["text"])
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
}

func TestHistory_RoundTripsTurns(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	_, err = mgr.AddUserMessage(ctx, sessionID, "Hello")
	require.NoError(t, err)
	_, err = mgr.AddMessagesBatch(ctx, sessionID, []agent.Turn{
		{Role: agent.RoleAssistant, Content: []agent.Block{agent.TextBlock{Text: "Hi"}}},
		{Role: agent.RoleTool, Content: []agent.Block{agent.ToolResultBlock{ToolUseID: "t1", Output: "out"}}},
	})
	require.NoError(t, err)

	turns, err := mgr.History(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, agent.RoleUser, turns[0].Role)
	require.Len(t, turns[0].Content, 1)
	text, ok := turns[0].Content[0].(agent.TextBlock)
	require.True(t, ok)
	assert.Equal(t, "Hello", text.Text)

	assert.Equal(t, agent.RoleAssistant, turns[1].Role)
	assert.Equal(t, agent.RoleTool, turns[2].Role)
	result, ok := turns[2].Content[0].(agent.ToolResultBlock)
	require.True(t, ok)
	assert.Equal(t, "t1", result.ToolUseID)
}

func TestHistory_EmptySession(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	turns, err := mgr.History(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestUpdateSessionStatus(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := mgr.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateSessionStatus(ctx, sessionID, store.SessionStatusInactive))

	session, err := mgr.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, store.SessionStatusInactive, session.Status)
}
