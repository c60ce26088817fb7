// ABOUTME: HTTP API handlers for session lifecycle and message submission.
// ABOUTME: Provides /api/v1/sessions routes backed by the session manager and engine.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/relay-gateway/internal/engine"
	"github.com/2389/relay-gateway/internal/store"
)

// CreateSessionResponse is the JSON response for POST /api/v1/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// SessionInfoResponse is one entry in the GET /api/v1/sessions response.
type SessionInfoResponse struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	IsConnected bool   `json:"is_connected"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ListSessionsResponse is the JSON response for GET /api/v1/sessions.
type ListSessionsResponse struct {
	Sessions []SessionInfoResponse `json:"sessions"`
}

// MessageResponse is one message in a session detail response.
type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// SessionDetailResponse is the JSON response for GET /api/v1/sessions/{id}.
type SessionDetailResponse struct {
	SessionID   string            `json:"session_id"`
	Status      string            `json:"status"`
	IsConnected bool              `json:"is_connected"`
	CreatedAt   string            `json:"created_at"`
	Messages    []MessageResponse `json:"messages"`
}

// SendMessageRequest is the JSON request body for POST /api/v1/sessions/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// handleSessions handles the /api/v1/sessions collection route.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleCreateSession(w, r)
	case http.MethodGet:
		g.handleListSessions(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleCreateSession creates a new session and returns its id.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := g.sessions.CreateSession(r.Context())
	if err != nil {
		g.logger.Error("failed to create session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, CreateSessionResponse{
		SessionID: sessionID,
		Status:    store.SessionStatusActive,
	})
}

// handleListSessions returns all sessions with a connectivity flag
// cross-checked against the shared registry.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := g.sessions.ListSessions(r.Context())
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// A registry outage must not read as "everyone disconnected".
	active, err := g.registry.ActiveSessions(r.Context())
	if err != nil {
		g.logger.Error("active session lookup failed", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "connection registry unavailable")
		return
	}

	response := ListSessionsResponse{Sessions: make([]SessionInfoResponse, 0, len(sessions))}
	for _, s := range sessions {
		_, connected := active[s.ID]
		response.Sessions = append(response.Sessions, SessionInfoResponse{
			SessionID:   s.ID,
			Status:      s.Status,
			IsConnected: connected,
			CreatedAt:   s.CreatedAt.Format(time.RFC3339),
			UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSessionRoutes dispatches /api/v1/sessions/{id} and its subroutes.
func (g *Gateway) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		g.sendJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	sessionID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleSessionDetail(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "messages":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleSendMessage(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "ws":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleWebSocket(w, r, sessionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// handleSessionDetail returns the session plus its ordered message history.
func (g *Gateway) handleSessionDetail(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := g.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	msgs, err := g.sessions.GetMessages(r.Context(), sessionID)
	if err != nil {
		g.logger.Error("failed to load messages", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	connected, err := g.registry.IsSessionActive(r.Context(), sessionID)
	if err != nil {
		g.logger.Error("connectivity check failed", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "connection registry unavailable")
		return
	}

	detail := SessionDetailResponse{
		SessionID:   session.ID,
		Status:      session.Status,
		IsConnected: connected,
		CreatedAt:   session.CreatedAt.Format(time.RFC3339),
		Messages:    make([]MessageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Type:      m.Type,
			Timestamp: m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleSendMessage accepts a user message, persists it, and schedules
// agent processing in the background. The response returns before
// processing completes; results stream over the session's WebSocket.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request, sessionID string) {
	req, err := parseSendRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := g.sessions.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "Session not found")
			return
		}
		g.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	connected, err := g.registry.IsSessionActive(r.Context(), sessionID)
	if err != nil {
		g.logger.Error("connectivity check failed", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "connection registry unavailable")
		return
	}
	if !connected {
		g.sendJSONError(w, http.StatusBadRequest, "Session not connected")
		return
	}

	if _, err := g.sessions.AddUserMessage(r.Context(), sessionID, req.Content); err != nil {
		g.logger.Error("failed to save user message", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	history, err := g.sessions.History(r.Context(), sessionID)
	if err != nil {
		g.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	params := g.engineParams()
	if err := g.supervisor.Go(r.Context(), "process-message", func(ctx context.Context) error {
		g.engine.ProcessMessageAndSave(ctx, sessionID, history, params)
		return nil
	}); err != nil {
		g.logger.Error("failed to schedule processing", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})
}

// engineParams builds invocation parameters from the agent configuration.
func (g *Gateway) engineParams() engine.Params {
	agentCfg := g.config.Agent
	params := engine.Params{
		MaxRetries: agentCfg.MaxRetries,
		RetryDelay: agentCfg.RetryDelay,
	}
	params.Model = agentCfg.Model
	params.Provider = agentCfg.Provider
	params.SystemPromptSuffix = agentCfg.SystemPromptSuffix
	params.ToolVersion = agentCfg.ToolVersion
	params.MaxTokens = agentCfg.MaxTokens
	params.ThinkingBudget = agentCfg.ThinkingBudget
	return params
}

// parseSendRequest parses and validates a SendMessageRequest from the
// given reader.
func parseSendRequest(r io.Reader) (*SendMessageRequest, error) {
	var req SendMessageRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}

	if req.Content == "" {
		return nil, errors.New("content is required")
	}

	return &req, nil
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
