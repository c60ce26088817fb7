// ABOUTME: Agent orchestration engine driving one streaming invocation per user message.
// ABOUTME: Streams intermediate events, retries transient failures, reconciles turns to storage.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/relay-gateway/internal/agent"
	"github.com/2389/relay-gateway/internal/registry"
	"github.com/2389/relay-gateway/internal/store"
)

// defaultMaxRetries bounds agent invocation attempts.
const defaultMaxRetries = 3

// Streamer is what the engine needs from the connection registry.
type Streamer interface {
	GetConnection(sessionID string) (registry.Channel, bool)
	SendToSession(ctx context.Context, sessionID string, event registry.Event) bool
}

// MessageStore is what the engine needs from the session layer.
type MessageStore interface {
	AddMessagesBatch(ctx context.Context, sessionID string, turns []agent.Turn) ([]*store.Message, error)
	AddMessage(ctx context.Context, sessionID, role, content string) (*store.Message, error)
}

// Params configures one invocation.
type Params struct {
	agent.Params
	MaxRetries int
	// RetryDelay is the fixed pause between attempts. Zero means none.
	RetryDelay time.Duration
}

// Engine coordinates one externally-driven, multi-step, streaming agent
// invocation per user message.
type Engine struct {
	streams  Streamer
	sessions MessageStore
	agent    agent.Agent
	logger   *slog.Logger
}

// New creates an engine.
func New(streams Streamer, sessions MessageStore, a agent.Agent, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		streams:  streams,
		sessions: sessions,
		agent:    a,
		logger:   logger.With("component", "engine"),
	}
}

// ProcessMessageAndSave runs the full invocation for one user message:
// stream intermediate events to the session's channel, retry transient
// agent failures, persist the newly produced turns, and emit a terminal
// task_complete or error event. Errors never propagate to the scheduler;
// they become terminal events when a channel is still reachable and log
// entries otherwise.
func (e *Engine) ProcessMessageAndSave(ctx context.Context, sessionID string, turns []agent.Turn, params Params) {
	if _, ok := e.streams.GetConnection(sessionID); !ok {
		// Nobody to stream to; the user turn is already durable.
		e.logger.Warn("no channel for session, skipping processing", "session_id", sessionID)
		return
	}

	originalCount := len(turns)

	e.emit(ctx, sessionID, registry.EventTypeDebug, registry.TaskStatusPending,
		fmt.Sprintf("Starting processing with %d messages", originalCount))
	e.emit(ctx, sessionID, registry.EventTypeDebug, registry.TaskStatusRunning,
		"Starting sampling loop...")

	callbacks := e.buildCallbacks(ctx, sessionID)

	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	updated, err := Retry(ctx, maxRetries, params.RetryDelay, e.logger, func() ([]agent.Turn, error) {
		return e.agent.Run(ctx, turns, params.Params, callbacks)
	})
	if err != nil {
		e.logger.Error("sampling loop failed after retries",
			"session_id", sessionID, "attempts", maxRetries, "error", err)
		e.emit(ctx, sessionID, registry.EventTypeError, registry.TaskStatusError,
			"Failed to process message")
		return
	}

	e.emit(ctx, sessionID, registry.EventTypeDebug, registry.TaskStatusRunning,
		fmt.Sprintf("Sampling loop completed with %d messages", len(updated)))

	// Everything at or beyond the original input length is new. An agent
	// returning fewer turns than it was given has produced nothing new.
	var newTurns []agent.Turn
	if len(updated) > originalCount {
		newTurns = updated[originalCount:]
	}
	if len(newTurns) == 0 {
		e.logger.Warn("no new turns to save", "session_id", sessionID)
		e.emit(ctx, sessionID, registry.EventTypeTaskComplete, registry.TaskStatusCompleted,
			"Task completed - no new messages")
		return
	}

	savedCount := e.persistTurns(ctx, sessionID, newTurns)

	e.emit(ctx, sessionID, registry.EventTypeTaskComplete, registry.TaskStatusCompleted,
		fmt.Sprintf("Task completed successfully. Saved %d new messages.", savedCount))
}

// buildCallbacks wires the agent's intermediate events onto the session
// channel. Dispatch only enqueues onto the channel's single-writer
// queue, so callbacks never block the agent's internal loop.
func (e *Engine) buildCallbacks(ctx context.Context, sessionID string) agent.Callbacks {
	return agent.Callbacks{
		OnAssistantBlock: func(block agent.Block) {
			e.emit(ctx, sessionID, registry.EventTypeAssistantMessage,
				registry.TaskStatusRunning, block.Map())
		},
		OnToolResult: func(result agent.ToolResultBlock) {
			e.emit(ctx, sessionID, registry.EventTypeToolResult,
				registry.TaskStatusRunning, toolResultContent(result))
		},
		OnAPIResponse: func(resp agent.APIResponse) {
			if resp.Err != nil {
				e.emit(ctx, sessionID, registry.EventTypeError, registry.TaskStatusError,
					fmt.Sprintf("API Error: %v", resp.Err))
				return
			}
			e.logger.Debug("api call",
				"method", resp.Method, "url", resp.URL, "status", resp.StatusCode)
		},
	}
}

// persistTurns saves the new turns, preferring one atomic batch and
// degrading to best-effort individual appends. Returns the count
// actually saved.
func (e *Engine) persistTurns(ctx context.Context, sessionID string, newTurns []agent.Turn) int {
	saved, err := e.sessions.AddMessagesBatch(ctx, sessionID, newTurns)
	if err == nil && len(saved) == len(newTurns) {
		e.logger.Info("saved new turns in batch", "session_id", sessionID, "count", len(saved))
		return len(saved)
	}
	if err != nil {
		e.logger.Error("batch save failed, falling back to individual saves",
			"session_id", sessionID, "error", err)
	} else {
		e.logger.Warn("batch rejected, falling back to individual saves",
			"session_id", sessionID)
	}

	savedCount := 0
	for i, turn := range newTurns {
		content, err := agent.MarshalContent(turn.Content)
		if err != nil {
			e.logger.Error("skipping unserializable turn",
				"session_id", sessionID, "index", i, "error", err)
			continue
		}
		role := store.RoleTool
		if turn.Role == agent.RoleAssistant {
			role = store.RoleAssistant
		}
		if _, err := e.sessions.AddMessage(ctx, sessionID, role, content); err != nil {
			e.logger.Error("individual save failed",
				"session_id", sessionID, "index", i, "error", err)
			continue
		}
		savedCount++
	}

	e.logger.Info("fallback save complete",
		"session_id", sessionID, "saved", savedCount, "attempted", len(newTurns))
	return savedCount
}

// emit pushes one event to the session's channel. Delivery failure is a
// liveness signal handled inside the registry; the engine only logs it.
func (e *Engine) emit(ctx context.Context, sessionID, eventType, taskStatus string, content any) {
	if ok := e.streams.SendToSession(ctx, sessionID, registry.Event{
		Type:       eventType,
		TaskStatus: taskStatus,
		Content:    content,
	}); !ok {
		e.logger.Debug("event not deliverable",
			"session_id", sessionID, "type", eventType)
	}
}

// toolResultContent extracts whichever result fields are present.
func toolResultContent(result agent.ToolResultBlock) map[string]any {
	content := map[string]any{}
	if result.Output != "" {
		content["output"] = result.Output
	}
	if result.Error != "" {
		content["error"] = result.Error
	}
	if result.Base64Image != "" {
		content["base64_image"] = result.Base64Image
	}
	if result.System != "" {
		content["system"] = result.System
	}
	return content
}
