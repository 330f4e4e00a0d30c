// Package anthropic defines the wire types for the Anthropic Messages API
// surface this gateway emulates: the inbound request/response JSON shapes
// and the SSE event payloads streamed back to callers.
package anthropic

import (
	"encoding/json"
	"fmt"
)

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of an inbound conversation. Content is a dynamic
// union: either a plain string or a list of typed content blocks.
type Message struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Blocks decodes Content as a content-block list. If Content is a bare
// JSON string, it returns a single TextBlock wrapping it; an empty
// string or absent Content yields no blocks.
func (m Message) Blocks() ([]ContentBlock, error) {
	return decodeContent(m.Content)
}

// System is the optional top-level system prompt: string or block list.
type System json.RawMessage

// Blocks decodes System the same way Message.Content is decoded.
func (s System) Blocks() ([]ContentBlock, error) {
	return decodeContent(json.RawMessage(s))
}

func decodeContent(raw json.RawMessage) ([]ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		return []ContentBlock{TextBlock{Text: asString}}, nil
	}

	var rawBlocks []json.RawMessage
	if err := json.Unmarshal(raw, &rawBlocks); err != nil {
		return nil, fmt.Errorf("content is neither a string nor a block list: %w", err)
	}

	blocks := make([]ContentBlock, 0, len(rawBlocks))
	for _, rb := range rawBlocks {
		block, err := decodeBlock(rb)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func decodeBlock(raw json.RawMessage) (ContentBlock, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decoding content block tag: %w", err)
	}

	switch tag.Type {
	case "text":
		var b TextBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_use":
		var b ToolUseBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "tool_result":
		var b ToolResultBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "image":
		var b ImageBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return UnknownBlock{Type: tag.Type, Raw: raw}, nil
	}
}

// ContentBlock is implemented by every concrete block type.
type ContentBlock interface {
	BlockType() string
}

type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TextBlock) BlockType() string { return "text" }

type ImageBlock struct {
	Type   string          `json:"type"`
	Source json.RawMessage `json:"source"`
}

func (ImageBlock) BlockType() string { return "image" }

type ToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock's Content is itself a string | block-list union, per
// spec.md §4.4's text-extraction rule (recursing into its inner text).
type ToolResultBlock struct {
	Type      string          `json:"type"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error,omitempty"`
}

func (ToolResultBlock) BlockType() string { return "tool_result" }

func (b ToolResultBlock) Blocks() ([]ContentBlock, error) {
	return decodeContent(b.Content)
}

// UnknownBlock preserves any block type the gateway doesn't need to
// interpret, so forward-compatible callers don't lose data silently.
type UnknownBlock struct {
	Type string
	Raw  json.RawMessage
}

func (u UnknownBlock) BlockType() string { return u.Type }

// Tool is an Anthropic tool definition as sent by the caller.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Request is the inbound body for POST /v1/messages and its alias.
type Request struct {
	Model     string          `json:"model"`
	Messages  []Message       `json:"messages"`
	System    System          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Tools     []Tool          `json:"tools,omitempty"`
	ToolChoice json.RawMessage `json:"tool_choice,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
}

// Usage reports token accounting for a response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ResponseContentBlock is an output content block: text or tool_use.
type ResponseContentBlock struct {
	Type  string      `json:"type"`
	Text  string      `json:"text,omitempty"`
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name,omitempty"`
	Input interface{} `json:"input,omitempty"`
}

// Response is the non-streaming reply envelope (§4.5).
type Response struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Role         string                 `json:"role"`
	Content      []ResponseContentBlock `json:"content"`
	Model        string                 `json:"model"`
	StopReason   string                 `json:"stop_reason"`
	StopSequence *string                `json:"stop_sequence"`
	Usage        Usage                  `json:"usage"`
}

// ErrorResponse is the JSON body for a 400/401/500 rejection.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorResponse(errType, message string) ErrorResponse {
	return ErrorResponse{
		Type: "error",
		Error: ErrorDetail{
			Type:    errType,
			Message: message,
		},
	}
}
