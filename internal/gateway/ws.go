// ABOUTME: WebSocket endpoint binding a client connection to a session.
// ABOUTME: Registers the channel, greets the client, and tears down on disconnect.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/relay-gateway/internal/registry"
	"github.com/2389/relay-gateway/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect cross-origin during development
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the request and binds the connection to the
// session as its live push channel. The connection is read only for
// liveness; all application data flows server to client.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := g.sessions.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "Session not found")
			return
		}
		g.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	ch := registry.NewWSChannel(conn, g.logger)
	if err := g.registry.AddConnection(r.Context(), sessionID, ch); err != nil {
		g.logger.Error("failed to register connection", "session_id", sessionID, "error", err)
		_ = ch.Close()
		return
	}

	if err := g.sessions.UpdateSessionStatus(r.Context(), sessionID, store.SessionStatusActive); err != nil {
		g.logger.Warn("failed to mark session active", "session_id", sessionID, "error", err)
	}

	g.logger.Info("websocket connected", "session_id", sessionID)

	g.registry.SendToSession(r.Context(), sessionID, registry.Event{
		Type:    registry.EventTypeConnectionEstablished,
		Content: fmt.Sprintf("Connected to session %s", sessionID),
	})

	// Inbound frames are keepalive only; block here until the client
	// goes away.
	g.readUntilClosed(conn, sessionID)

	g.teardownConnection(sessionID, ch)
}

// readUntilClosed discards inbound frames until the connection errors.
func (g *Gateway) readUntilClosed(conn *websocket.Conn, sessionID string) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("websocket read error", "session_id", sessionID, "error", err)
			}
			return
		}
	}
}

// teardownConnection stops the channel's write pump, deregisters it,
// and marks the session inactive. Runs after the request context is
// gone, so it uses a fresh bounded context.
func (g *Gateway) teardownConnection(sessionID string, ch registry.Channel) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The read loop already saw the connection die; Close releases the
	// pump goroutine and the socket.
	_ = ch.Close()

	if err := g.registry.RemoveConnection(ctx, sessionID); err != nil {
		g.logger.Warn("failed to deregister connection", "session_id", sessionID, "error", err)
	}
	if err := g.sessions.UpdateSessionStatus(ctx, sessionID, store.SessionStatusInactive); err != nil {
		g.logger.Warn("failed to mark session inactive", "session_id", sessionID, "error", err)
	}

	g.logger.Info("websocket disconnected", "session_id", sessionID)
}
