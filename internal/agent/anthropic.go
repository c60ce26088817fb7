// ABOUTME: Anthropic-backed Agent implementation using the official SDK.
// ABOUTME: Runs a sampling loop, executing requested tools until the model stops.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
)

// defaultMaxIterations bounds the tool-use loop for a single invocation.
const defaultMaxIterations = 16

// AnthropicOptions configures the Anthropic agent.
type AnthropicOptions struct {
	APIKey        string
	MaxIterations int
	// Tools executes model-requested tool calls. Nil disables tools.
	Tools ToolExecutor
}

// AnthropicAgent implements Agent on the Anthropic Messages API.
type AnthropicAgent struct {
	client        *anthropic.Client
	tools         ToolExecutor
	maxIterations int
	logger        *slog.Logger
}

// NewAnthropicAgent creates an agent using the official client.
func NewAnthropicAgent(opts AnthropicOptions, logger *slog.Logger) *AnthropicAgent {
	if logger == nil {
		logger = slog.Default()
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	return &AnthropicAgent{
		client:        &client,
		tools:         opts.Tools,
		maxIterations: maxIterations,
		logger:        logger.With("component", "anthropic-agent"),
	}
}

// Run drives the sampling loop: send the history, stream each returned
// content block through the callbacks, execute requested tools, append
// their results as a tool turn, and repeat until the model stops asking
// for tools or the iteration bound is hit.
func (a *AnthropicAgent) Run(ctx context.Context, turns []Turn, params Params, cb Callbacks) ([]Turn, error) {
	history := make([]Turn, len(turns))
	copy(history, turns)

	toolParams := a.buildTools(params.ToolVersion)

	for i := 0; i < a.maxIterations; i++ {
		req := anthropic.MessageNewParams{
			Model:     anthropic.Model(params.Model),
			MaxTokens: params.MaxTokens,
			Messages:  buildMessages(history),
		}
		if params.SystemPromptSuffix != "" {
			req.System = []anthropic.TextBlockParam{{Text: params.SystemPromptSuffix}}
		}
		if len(toolParams) > 0 {
			req.Tools = toolParams
		}
		if params.ThinkingBudget > 0 {
			req.Thinking = anthropic.ThinkingConfigParamOfEnabled(params.ThinkingBudget)
		}

		resp, err := a.client.Messages.New(ctx, req)
		cb.apiResponse(APIResponse{
			Method: "POST",
			URL:    "/v1/messages",
			Err:    err,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic api error: %w", err)
		}

		assistantBlocks, toolUses := convertResponseContent(resp)
		for _, block := range assistantBlocks {
			cb.assistantBlock(block)
		}
		history = append(history, Turn{Role: RoleAssistant, Content: assistantBlocks})

		if string(resp.StopReason) != "tool_use" || len(toolUses) == 0 {
			return history, nil
		}

		resultBlocks := make([]Block, 0, len(toolUses))
		for _, use := range toolUses {
			result := a.executeTool(ctx, use)
			cb.toolResult(result)
			resultBlocks = append(resultBlocks, result)
		}
		history = append(history, Turn{Role: RoleTool, Content: resultBlocks})
	}

	a.logger.Warn("sampling loop hit iteration bound", "max_iterations", a.maxIterations)
	return history, nil
}

// executeTool runs one requested tool, converting executor failures into
// error-tagged results so the model can see them.
func (a *AnthropicAgent) executeTool(ctx context.Context, use ToolUseBlock) ToolResultBlock {
	if a.tools == nil {
		return ToolResultBlock{
			ToolUseID: use.ID,
			Error:     fmt.Sprintf("tool %q is not available", use.Name),
			IsError:   true,
		}
	}

	result, err := a.tools.Execute(ctx, use.Name, use.Input)
	if err != nil {
		a.logger.Error("tool execution failed", "tool", use.Name, "error", err)
		return ToolResultBlock{
			ToolUseID: use.ID,
			Error:     err.Error(),
			IsError:   true,
		}
	}
	result.ToolUseID = use.ID
	return result
}

// buildTools converts executor definitions to Anthropic tool params.
func (a *AnthropicAgent) buildTools(toolVersion string) []anthropic.ToolUnionParam {
	if a.tools == nil {
		return nil
	}

	defs := a.tools.Definitions(toolVersion)
	toolParams := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if properties, ok := def.InputSchema["properties"]; ok {
			inputSchema.Properties = properties
		}
		if required, ok := def.InputSchema["required"].([]string); ok {
			inputSchema.Required = required
		}
		toolParams[i] = anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
	}
	return toolParams
}

// buildMessages converts gateway turns to Anthropic message params.
// Tool turns are sent with the user role, as the API requires for
// tool_result content.
func buildMessages(turns []Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		content := buildContent(turn.Content)
		if len(content) == 0 {
			continue
		}
		if turn.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(content...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(content...))
		}
	}
	return messages
}

// buildContent converts typed blocks to Anthropic content block params.
func buildContent(blocks []Block) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, b := range blocks {
		switch block := b.(type) {
		case TextBlock:
			if block.Text != "" {
				content = append(content, anthropic.NewTextBlock(block.Text))
			}
		case ToolUseBlock:
			content = append(content, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
		case ToolResultBlock:
			text := block.Output
			if block.IsError && block.Error != "" {
				text = block.Error
			}
			content = append(content, anthropic.NewToolResultBlock(block.ToolUseID, text, block.IsError))
		case ImageBlock:
			content = append(content, anthropic.NewImageBlockBase64(block.MediaType, block.Data))
		}
	}
	return content
}

// convertResponseContent maps API response blocks to typed blocks,
// returning the full assistant content plus any tool-use requests.
func convertResponseContent(resp *anthropic.Message) ([]Block, []ToolUseBlock) {
	var blocks []Block
	var toolUses []ToolUseBlock

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			blocks = append(blocks, TextBlock{Text: textBlock.Text})
		case "tool_use":
			toolBlock := block.AsToolUse()
			var input map[string]any
			if data, err := json.Marshal(toolBlock.Input); err == nil {
				_ = json.Unmarshal(data, &input)
			}
			use := ToolUseBlock{ID: toolBlock.ID, Name: toolBlock.Name, Input: input}
			blocks = append(blocks, use)
			toolUses = append(toolUses, use)
		}
	}
	return blocks, toolUses
}
