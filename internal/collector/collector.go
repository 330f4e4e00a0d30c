// Package collector implements the batch response collector (C5): it
// aggregates decoded CodeWhisperer frames into a single Anthropic
// response, per spec.md §4.5.
package collector

import (
	"encoding/json"
	"time"

	anthropictypes "github.com/kiro-gateway/kiro-gateway/pkg/anthropic"
	"github.com/kiro-gateway/kiro-gateway/internal/eventstream"
	"github.com/kiro-gateway/kiro-gateway/internal/tokencount"
)

type toolAccumulator struct {
	id       string
	name     string
	fragment string
	stopped  bool
}

// Collect aggregates events into a final Anthropic response. model is
// echoed back verbatim; inputTokens is the caller-supplied estimate fed
// identically to the streaming path (spec.md §4.7).
func Collect(events []eventstream.Event, model string, inputTokens int) anthropictypes.Response {
	var text string
	var order []string
	tools := map[string]*toolAccumulator{}
	upstreamStopReason := ""

	var activeToolID string
	for _, ev := range events {
		switch {
		case ev.HasToolUseID && ev.HasName && !ev.HasStop:
			t := &toolAccumulator{id: ev.ToolUseID, name: ev.Name}
			tools[ev.ToolUseID] = t
			order = append(order, ev.ToolUseID)
			activeToolID = ev.ToolUseID

		case ev.HasInput && activeToolID != "":
			tools[activeToolID].fragment += ev.Input

		case ev.HasStop && ev.Stop:
			id := ev.ToolUseID
			if id == "" {
				id = activeToolID
			}
			if t, ok := tools[id]; ok {
				t.stopped = true
			}
			activeToolID = ""

		case ev.HasContent:
			text += ev.Content
		}
		if ev.StopReason != "" {
			upstreamStopReason = ev.StopReason
		}
	}

	var content []anthropictypes.ResponseContentBlock
	if text != "" {
		content = append(content, anthropictypes.ResponseContentBlock{Type: "text", Text: text})
	}

	stopReason := "end_turn"
	for _, id := range order {
		t := tools[id]
		var input interface{} = map[string]interface{}{}
		if t.fragment != "" {
			var parsed interface{}
			if err := json.Unmarshal([]byte(t.fragment), &parsed); err == nil {
				input = parsed
			}
		}
		content = append(content, anthropictypes.ResponseContentBlock{
			Type:  "tool_use",
			ID:    t.id,
			Name:  t.name,
			Input: input,
		})
		if t.stopped {
			stopReason = "tool_use"
		}
	}

	// Supplemented from original_source/app/response_parser.py: an
	// explicit upstream MAX_LEN stop reason takes priority over the
	// tool-use escalation above.
	if upstreamStopReason == "MAX_LEN" || upstreamStopReason == "max_tokens" {
		stopReason = "max_tokens"
	}

	return anthropictypes.Response{
		ID:           "msg_" + time.Now().UTC().Format("20060102150405"),
		Type:         "message",
		Role:         "assistant",
		Content:      content,
		Model:        model,
		StopReason:   stopReason,
		StopSequence: nil,
		Usage: anthropictypes.Usage{
			InputTokens:  inputTokens,
			OutputTokens: tokencount.Count(text),
		},
	}
}
