// Package convert implements the request converter (C4): turning an
// Anthropic Messages request into the CodeWhisperer conversationState
// envelope, including history folding, system-prompt injection, and tool
// translation, per spec.md §4.4.
package convert

import (
	"encoding/json"

	"github.com/google/uuid"
	anthropictypes "github.com/kiro-gateway/kiro-gateway/pkg/anthropic"
)

// ToolSpec is CodeWhisperer's tool shape.
type ToolSpec struct {
	ToolSpecification ToolSpecification `json:"toolSpecification"`
}

type ToolSpecification struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema InputSchemaWrap `json:"inputSchema"`
}

type InputSchemaWrap struct {
	JSON json.RawMessage `json:"json"`
}

// UserInputMessageContext carries tool definitions attached to the
// current turn.
type UserInputMessageContext struct {
	Tools []ToolSpec `json:"tools,omitempty"`
}

type UserInputMessage struct {
	Content                 string                    `json:"content"`
	ModelID                 string                    `json:"modelId"`
	Origin                  string                    `json:"origin"`
	UserInputMessageContext *UserInputMessageContext  `json:"userInputMessageContext,omitempty"`
}

type AssistantResponseMessage struct {
	Content  string        `json:"content"`
	ToolUses []interface{} `json:"toolUses"`
}

// HistoryEntry holds exactly one of UserInputMessage or
// AssistantResponseMessage, matching CodeWhisperer's wire shape where
// each history element is a single-keyed object.
type HistoryEntry struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

type CurrentMessage struct {
	UserInputMessage UserInputMessage `json:"userInputMessage"`
}

type ConversationState struct {
	ChatTriggerType string         `json:"chatTriggerType"`
	ConversationID  string         `json:"conversationId"`
	CurrentMessage  CurrentMessage `json:"currentMessage"`
	History         []HistoryEntry `json:"history"`
}

// CodeWhispererRequest is the full body posted to generateAssistantResponse.
type CodeWhispererRequest struct {
	ProfileArn        string            `json:"profileArn"`
	ConversationState ConversationState `json:"conversationState"`
}

// ModelMapper maps an Anthropic model alias to the actual upstream model
// id. Unknown names pass through unchanged (spec.md §4.4).
type ModelMapper func(alias string) string

// IdentityMapper is a ModelMapper that never rewrites a name.
func IdentityMapper(alias string) string { return alias }

// ToCodeWhisperer converts req into the upstream envelope, using
// profileArn (from C3) and mapModel (from configuration).
func ToCodeWhisperer(req anthropictypes.Request, profileArn string, mapModel ModelMapper) (CodeWhispererRequest, error) {
	if mapModel == nil {
		mapModel = IdentityMapper
	}

	history, err := buildHistory(req)
	if err != nil {
		return CodeWhispererRequest{}, err
	}

	var current UserInputMessage
	if len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1]
		blocks, err := last.Blocks()
		if err != nil {
			return CodeWhispererRequest{}, err
		}
		current = UserInputMessage{
			Content: messageText(blocks),
			ModelID: mapModel(req.Model),
			Origin:  "AI_EDITOR",
		}
	} else {
		current = UserInputMessage{
			Content: textPlaceholder,
			ModelID: mapModel(req.Model),
			Origin:  "AI_EDITOR",
		}
	}

	if tools := toolSpecs(req.Tools); len(tools) > 0 {
		current.UserInputMessageContext = &UserInputMessageContext{Tools: tools}
	}

	return CodeWhispererRequest{
		ProfileArn: profileArn,
		ConversationState: ConversationState{
			ChatTriggerType: "MANUAL",
			ConversationID:  uuid.NewString(),
			CurrentMessage:  CurrentMessage{UserInputMessage: current},
			History:         history,
		},
	}, nil
}

// buildHistory folds every message but the last into alternating
// user/assistant history entries, injecting a synthetic system-prompt
// turn at the front when req.System is present (spec.md §4.4).
func buildHistory(req anthropictypes.Request) ([]HistoryEntry, error) {
	var history []HistoryEntry

	if sysEntries, err := systemHistory(req.System); err != nil {
		return nil, err
	} else {
		history = append(history, sysEntries...)
	}

	if len(req.Messages) == 0 {
		return history, nil
	}

	// All but the last message participate in history folding.
	msgs := req.Messages[:len(req.Messages)-1]

	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role != anthropictypes.RoleUser {
			// Orphan assistant message without a preceding user entry: skip.
			i++
			continue
		}

		blocks, err := msg.Blocks()
		if err != nil {
			return nil, err
		}
		entry := HistoryEntry{UserInputMessage: &UserInputMessage{
			Content: messageText(blocks),
		}}
		history = append(history, entry)
		i++

		if i < len(msgs) && msgs[i].Role == anthropictypes.RoleAssistant {
			aBlocks, err := msgs[i].Blocks()
			if err != nil {
				return nil, err
			}
			history = append(history, HistoryEntry{AssistantResponseMessage: &AssistantResponseMessage{
				Content:  messageText(aBlocks),
				ToolUses: []interface{}{},
			}})
			i++
		}
	}

	return history, nil
}

// systemHistory emits one synthetic user/assistant pair per system block
// (spec.md §4.4's system-prompt injection).
func systemHistory(system anthropictypes.System) ([]HistoryEntry, error) {
	blocks, err := system.Blocks()
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	for _, b := range blocks {
		text := extractText([]anthropictypes.ContentBlock{b})
		if text == "" {
			continue
		}
		entries = append(entries,
			HistoryEntry{UserInputMessage: &UserInputMessage{Content: text}},
			HistoryEntry{AssistantResponseMessage: &AssistantResponseMessage{
				Content:  "I will follow these instructions",
				ToolUses: []interface{}{},
			}},
		)
	}
	return entries, nil
}

func toolSpecs(tools []anthropictypes.Tool) []ToolSpec {
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, ToolSpec{
			ToolSpecification: ToolSpecification{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: InputSchemaWrap{JSON: t.InputSchema},
			},
		})
	}
	return specs
}
