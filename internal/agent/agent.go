// ABOUTME: Agent interface and callback types for external LLM invocations.
// ABOUTME: One Run call may perform multiple internal steps and produce multiple turns.

package agent

import "context"

// Params configures one agent invocation.
type Params struct {
	Model              string
	Provider           string
	SystemPromptSuffix string
	ToolVersion        string
	MaxTokens          int64
	// ThinkingBudget enables extended thinking when > 0.
	ThinkingBudget int64
}

// APIResponse describes one underlying network call made during an
// invocation. Err is nil on success.
type APIResponse struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

// Callbacks receive intermediate events while an invocation is in flight.
// Any callback may be nil. Implementations must not block the agent's
// internal loop.
type Callbacks struct {
	// OnAssistantBlock fires once per content block the model produces.
	OnAssistantBlock func(Block)
	// OnToolResult fires once per tool invocation result.
	OnToolResult func(ToolResultBlock)
	// OnAPIResponse fires once per underlying API call.
	OnAPIResponse func(APIResponse)
}

func (c Callbacks) assistantBlock(b Block) {
	if c.OnAssistantBlock != nil {
		c.OnAssistantBlock(b)
	}
}

func (c Callbacks) toolResult(r ToolResultBlock) {
	if c.OnToolResult != nil {
		c.OnToolResult(r)
	}
}

func (c Callbacks) apiResponse(r APIResponse) {
	if c.OnAPIResponse != nil {
		c.OnAPIResponse(r)
	}
}

// Agent is the external LLM/tool-execution engine. Run takes the full
// ordered turn history and returns the updated history; everything at or
// beyond the input length is newly produced.
type Agent interface {
	Run(ctx context.Context, turns []Turn, params Params, cb Callbacks) ([]Turn, error)
}

// ToolDefinition declares one tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchema holds the JSON-schema properties and required list.
	InputSchema map[string]any
}

// ToolExecutor runs tools on behalf of the model. Implementations live
// outside the gateway; the engine only sees their results.
type ToolExecutor interface {
	Definitions(toolVersion string) []ToolDefinition
	Execute(ctx context.Context, name string, input map[string]any) (ToolResultBlock, error)
}
