// ABOUTME: Turn and content block types exchanged with the external agent.
// ABOUTME: Blocks form an explicit tagged union with compile-time JSON mappings.

package agent

import (
	"encoding/json"
	"fmt"
)

// Turn roles. Tool results travel back to the model inside a user-role
// message, but the gateway tracks them as a distinct "tool" turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Block types.
const (
	BlockTypeText       = "text"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
	BlockTypeImage      = "image"
)

// Turn is one role-tagged unit of conversation content.
type Turn struct {
	Role    string
	Content []Block
}

// Block is one typed content block inside a turn. Each variant knows its
// own JSON mapping; there is no runtime attribute probing.
type Block interface {
	BlockType() string
	// Map returns the JSON-compatible representation of the block.
	Map() map[string]any
}

// TextBlock is plain assistant or user text.
type TextBlock struct {
	Text string
}

func (b TextBlock) BlockType() string { return BlockTypeText }

func (b TextBlock) Map() map[string]any {
	return map[string]any{"type": BlockTypeText, "text": b.Text}
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (b ToolUseBlock) BlockType() string { return BlockTypeToolUse }

func (b ToolUseBlock) Map() map[string]any {
	input := b.Input
	if input == nil {
		input = map[string]any{}
	}
	return map[string]any{
		"type":  BlockTypeToolUse,
		"id":    b.ID,
		"name":  b.Name,
		"input": input,
	}
}

// ToolResultBlock is the outcome of one tool invocation. Only the fields
// that are present appear in the JSON mapping.
type ToolResultBlock struct {
	ToolUseID   string
	Output      string
	Error       string
	Base64Image string
	System      string
	IsError     bool
}

func (b ToolResultBlock) BlockType() string { return BlockTypeToolResult }

func (b ToolResultBlock) Map() map[string]any {
	m := map[string]any{"type": BlockTypeToolResult}
	if b.ToolUseID != "" {
		m["tool_use_id"] = b.ToolUseID
	}
	if b.Output != "" {
		m["output"] = b.Output
	}
	if b.Error != "" {
		m["error"] = b.Error
	}
	if b.Base64Image != "" {
		m["base64_image"] = b.Base64Image
	}
	if b.System != "" {
		m["system"] = b.System
	}
	if b.IsError {
		m["is_error"] = true
	}
	return m
}

// ImageBlock is a base64-encoded image, typically a screenshot.
type ImageBlock struct {
	MediaType string
	Data      string
}

func (b ImageBlock) BlockType() string { return BlockTypeImage }

func (b ImageBlock) Map() map[string]any {
	return map[string]any{
		"type": BlockTypeImage,
		"source": map[string]any{
			"type":       "base64",
			"media_type": b.MediaType,
			"data":       b.Data,
		},
	}
}

// MarshalContent serializes a block list to the JSON form persisted in the
// conversation store.
func MarshalContent(blocks []Block) (string, error) {
	maps := make([]map[string]any, len(blocks))
	for i, b := range blocks {
		maps[i] = b.Map()
	}
	data, err := json.Marshal(maps)
	if err != nil {
		return "", fmt.Errorf("serializing content blocks: %w", err)
	}
	return string(data), nil
}

// ParseContent decodes stored message content back into typed blocks.
// Plain text (anything that is not a JSON block array) is wrapped as a
// single text block, matching how user input is stored.
func ParseContent(content string) []Block {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return []Block{TextBlock{Text: content}}
	}

	blocks := make([]Block, 0, len(raw))
	for _, m := range raw {
		blocks = append(blocks, blockFromMap(m))
	}
	return blocks
}

// blockFromMap converts one JSON object into its typed block. Unknown
// block types degrade to a text block carrying the raw JSON.
func blockFromMap(m map[string]any) Block {
	switch m["type"] {
	case BlockTypeText:
		return TextBlock{Text: stringField(m, "text")}
	case BlockTypeToolUse:
		input, _ := m["input"].(map[string]any)
		return ToolUseBlock{
			ID:    stringField(m, "id"),
			Name:  stringField(m, "name"),
			Input: input,
		}
	case BlockTypeToolResult:
		isError, _ := m["is_error"].(bool)
		return ToolResultBlock{
			ToolUseID:   stringField(m, "tool_use_id"),
			Output:      stringField(m, "output"),
			Error:       stringField(m, "error"),
			Base64Image: stringField(m, "base64_image"),
			System:      stringField(m, "system"),
			IsError:     isError,
		}
	case BlockTypeImage:
		source, _ := m["source"].(map[string]any)
		return ImageBlock{
			MediaType: stringField(source, "media_type"),
			Data:      stringField(source, "data"),
		}
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return TextBlock{Text: fmt.Sprintf("%v", m)}
		}
		return TextBlock{Text: string(data)}
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
