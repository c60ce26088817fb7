// Package gateway orchestrates the relay-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the relay-gateway
// server. It owns the session API, the per-session WebSocket endpoints,
// and the lifecycle of the store, connection registry, orchestration
// engine, and task supervisor.
//
// # HTTP API
//
// Session routes live under /api/v1:
//
//   - POST /api/v1/sessions - Create a session
//   - GET /api/v1/sessions - List sessions with connectivity flags
//   - GET /api/v1/sessions/{id} - Session detail with message history
//   - POST /api/v1/sessions/{id}/messages - Submit a user message
//   - GET /api/v1/sessions/{id}/ws - WebSocket event stream
//   - GET /health - Liveness check
//   - GET /health/db - Database connectivity check
//   - GET /health/redis - Registry connectivity and active sessions
//
// # Message Flow
//
// Submitting a message returns {"status": "processing"} immediately.
// The agent invocation runs on the task supervisor; intermediate and
// terminal events stream over the session's WebSocket as JSON envelopes:
//
//	{"type": "assistant_message", "task_status": "running", "content": {...}}
//	{"type": "task_complete", "task_status": "completed", "content": "..."}
//
// Event types: debug, assistant_message, tool_result, error,
// task_complete, connection_established.
//
// # WebSocket Lifecycle
//
// On connect the session is registered in the shared store, marked
// active, and greeted with a connection_established event. Inbound
// frames are keepalive only. On disconnect the channel is deregistered
// and the session marked inactive.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//
// Run drains background tasks and closes the store before returning.
package gateway
