// Package translator implements the stream translator (C6): a small
// state machine fed by decoded CodeWhisperer frames that emits an
// Anthropic-format SSE stream, splicing <thinking>...</thinking> text
// into a separate content block and translating tool-use events into
// input_json_delta blocks, per spec.md §4.6.
package translator

import (
	"fmt"
	"strings"
	"time"

	"github.com/kiro-gateway/kiro-gateway/internal/eventstream"
	"github.com/kiro-gateway/kiro-gateway/internal/ssewriter"
	"github.com/kiro-gateway/kiro-gateway/internal/tokencount"
)

const (
	openThinkTag  = "<thinking>"
	closeThinkTag = "</thinking>"
)

type blockKind string

const (
	blockNone     blockKind = "none"
	blockText     blockKind = "text"
	blockThinking blockKind = "thinking"
	blockToolUse  blockKind = "tool_use"
)

type toolState struct {
	id       string
	name     string
	fragment string
}

// Translator holds all per-request state for one streaming response. It
// is not safe for concurrent use — spec.md §5 runs one instance per
// inbound request, cooperatively, with no cross-request shared state.
type Translator struct {
	w           *ssewriter.Writer
	model       string
	inputTokens int

	msgStartSent bool

	blockIndex   int
	blockOpen    blockKind
	thinkBuffer  string
	inThink      bool
	pendingChars int

	tool *toolState

	respBuffer string
	toolInputs []string
}

// New creates a Translator that emits Anthropic SSE to w for a request
// that reported model and inputTokens (the BPE estimate computed by the
// proxy orchestrator over the inbound request, per spec.md §4.7).
func New(w *ssewriter.Writer, model string, inputTokens int) *Translator {
	return &Translator{
		w:           w,
		model:       model,
		inputTokens: inputTokens,
		blockIndex:  -1,
		blockOpen:   blockNone,
	}
}

// HandleEvent routes one decoded frame through the state machine.
func (t *Translator) HandleEvent(ev eventstream.Event) error {
	switch {
	case ev.HasConversationID && !ev.HasContent:
		return t.handleInitial()

	case ev.HasStop && ev.Stop && t.tool != nil:
		return t.handleToolStop(ev)

	case ev.HasToolUseID && ev.HasName && t.tool == nil:
		return t.handleToolStart(ev)

	case ev.HasInput && t.tool != nil:
		return t.handleToolFragment(ev)

	case ev.HasContent:
		return t.handleText(ev.Content)
	}

	return nil
}

func (t *Translator) handleInitial() error {
	if t.msgStartSent {
		return nil
	}
	t.msgStartSent = true

	msg := map[string]interface{}{
		"id":            "msg_" + time.Now().UTC().Format("20060102150405"),
		"type":          "message",
		"role":          "assistant",
		"content":       []interface{}{},
		"model":         t.model,
		"stop_reason":   nil,
		"stop_sequence": nil,
		"usage": map[string]interface{}{
			"input_tokens":  t.inputTokens,
			"output_tokens": 1,
		},
	}
	if err := t.w.WriteEvent("message_start", map[string]interface{}{
		"type":    "message_start",
		"message": msg,
	}); err != nil {
		return err
	}
	return t.w.WriteEvent("ping", map[string]interface{}{"type": "ping"})
}

// --- tool-use handling ---

func (t *Translator) handleToolStart(ev eventstream.Event) error {
	t.closeOpenBlock()
	t.tool = &toolState{id: ev.ToolUseID, name: ev.Name}
	t.blockIndex++
	t.blockOpen = blockToolUse
	return t.w.WriteEvent("content_block_start", map[string]interface{}{
		"type":  "content_block_start",
		"index": t.blockIndex,
		"content_block": map[string]interface{}{
			"type":  "tool_use",
			"id":    ev.ToolUseID,
			"name":  ev.Name,
			"input": map[string]interface{}{},
		},
	})
}

func (t *Translator) handleToolFragment(ev eventstream.Event) error {
	t.tool.fragment += ev.Input
	return t.w.WriteEvent("content_block_delta", map[string]interface{}{
		"type":  "content_block_delta",
		"index": t.blockIndex,
		"delta": map[string]interface{}{
			"type":         "input_json_delta",
			"partial_json": ev.Input,
		},
	})
}

func (t *Translator) handleToolStop(ev eventstream.Event) error {
	index := t.blockIndex
	t.toolInputs = append(t.toolInputs, t.tool.fragment)
	t.tool = nil
	t.blockOpen = blockNone
	return t.w.WriteEvent("content_block_stop", map[string]interface{}{
		"type":  "content_block_stop",
		"index": index,
	})
}

// --- text / thinking-tag splicer ---

func (t *Translator) handleText(chunk string) error {
	buf := t.thinkBuffer + chunk
	t.thinkBuffer = ""

	for {
		if buf == "" {
			// An empty buffer is not a tag prefix; wait for more input.
			return nil
		}
		if t.pendingChars > 0 {
			consume := t.pendingChars
			if consume > len(buf) {
				consume = len(buf)
			}
			buf = buf[consume:]
			t.pendingChars -= consume
			if buf == "" {
				t.thinkBuffer = buf
				return nil
			}
		}

		if !t.inThink {
			done, err := t.stepOutsideThink(&buf)
			if err != nil {
				return err
			}
			if !done {
				t.thinkBuffer = buf
				return nil
			}
			continue
		}

		done, err := t.stepInsideThink(&buf)
		if err != nil {
			return err
		}
		if !done {
			t.thinkBuffer = buf
			return nil
		}
	}
}

// stepOutsideThink processes buf while not inside a thinking block. It
// returns done=true when the caller should immediately re-process the
// (mutated) buffer, or done=false when it must wait for more input.
func (t *Translator) stepOutsideThink(buf *string) (bool, error) {
	if p := strings.Index(*buf, openThinkTag); p >= 0 {
		prefix := (*buf)[:p]
		if prefix != "" {
			if err := t.emitDelta(blockText, "text_delta", "text", prefix); err != nil {
				return false, err
			}
		}
		t.closeOpenBlock()
		if err := t.openBlock(blockThinking); err != nil {
			return false, err
		}
		t.inThink = true
		*buf = (*buf)[p+len(openThinkTag):]
		return true, nil
	}

	k := longestOverlap(*buf, openThinkTag)
	if k == len(*buf) && len(*buf) < len(openThinkTag) {
		t.closeOpenBlock()
		if err := t.openBlock(blockThinking); err != nil {
			return false, err
		}
		t.inThink = true
		t.pendingChars = len(openThinkTag) - len(*buf)
		*buf = ""
		return false, nil
	}

	safe := len(*buf) - k
	if safe > 0 {
		if err := t.emitDelta(blockText, "text_delta", "text", (*buf)[:safe]); err != nil {
			return false, err
		}
	}
	*buf = (*buf)[safe:]
	return false, nil
}

func (t *Translator) stepInsideThink(buf *string) (bool, error) {
	if p := strings.Index(*buf, closeThinkTag); p >= 0 {
		prefix := (*buf)[:p]
		if prefix != "" {
			if err := t.emitDelta(blockThinking, "thinking_delta", "thinking", prefix); err != nil {
				return false, err
			}
		}
		t.closeOpenBlock()
		t.inThink = false
		*buf = (*buf)[p+len(closeThinkTag):]
		return true, nil
	}

	k := longestOverlap(*buf, closeThinkTag)
	if k == len(*buf) && len(*buf) < len(closeThinkTag) {
		t.pendingChars = len(closeThinkTag) - len(*buf)
		*buf = ""
		return false, nil
	}

	safe := len(*buf) - k
	if safe > 0 {
		if err := t.emitDelta(blockThinking, "thinking_delta", "thinking", (*buf)[:safe]); err != nil {
			return false, err
		}
	}
	*buf = (*buf)[safe:]
	return false, nil
}

// emitDelta ensures a block of kind is open (lazily opening it on the
// first actually-available byte) and emits one delta record.
func (t *Translator) emitDelta(kind blockKind, deltaType, field, text string) error {
	if err := t.openBlock(kind); err != nil {
		return err
	}
	t.respBuffer += text
	return t.w.WriteEvent("content_block_delta", map[string]interface{}{
		"type":  "content_block_delta",
		"index": t.blockIndex,
		"delta": map[string]interface{}{
			"type": deltaType,
			field:  text,
		},
	})
}

// openBlock is a no-op if a block of this kind is already open; otherwise
// it closes whatever is open and starts a fresh one.
func (t *Translator) openBlock(kind blockKind) error {
	if t.blockOpen == kind {
		return nil
	}
	t.closeOpenBlock()

	t.blockIndex++
	t.blockOpen = kind

	var block map[string]interface{}
	switch kind {
	case blockText:
		block = map[string]interface{}{"type": "text", "text": ""}
	case blockThinking:
		block = map[string]interface{}{"type": "thinking", "thinking": ""}
	default:
		return fmt.Errorf("translator: cannot lazily open block kind %q", kind)
	}

	return t.w.WriteEvent("content_block_start", map[string]interface{}{
		"type":          "content_block_start",
		"index":         t.blockIndex,
		"content_block": block,
	})
}

// closeOpenBlock emits content_block_stop for whatever is currently
// open, if anything. A failed write is ignored here; Finish also closes
// through this method, so it does not report such a failure either.
func (t *Translator) closeOpenBlock() {
	if t.blockOpen == blockNone {
		return
	}
	_ = t.w.WriteEvent("content_block_stop", map[string]interface{}{
		"type":  "content_block_stop",
		"index": t.blockIndex,
	})
	t.blockOpen = blockNone
}

// Finish closes any still-open block and emits the terminal
// message_delta/message_stop pair, per spec.md §4.6's end-of-stream rule.
// stop_reason is hardcoded to "end_turn" unconditionally — unlike the
// batch collector, the streaming path never upgrades it to "tool_use" or
// "max_tokens" (spec.md §4.6, scenario S3).
func (t *Translator) Finish() error {
	t.closeOpenBlock()

	outputTokens := tokencount.Count(t.respBuffer + strings.Join(t.toolInputs, ""))

	if err := t.w.WriteEvent("message_delta", map[string]interface{}{
		"type": "message_delta",
		"delta": map[string]interface{}{
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
		},
		"usage": map[string]interface{}{
			"output_tokens": outputTokens,
		},
	}); err != nil {
		return err
	}

	return t.w.WriteEvent("message_stop", map[string]interface{}{"type": "message_stop"})
}

// EmitError synthesizes an Anthropic error SSE event. Per spec.md §7 the
// streaming path must never raise after the first byte has been written;
// this is the mechanism it uses instead.
func (t *Translator) EmitError(message string) error {
	return t.w.WriteEvent("error", map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"type":    "api_error",
			"message": message,
		},
	})
}

// longestOverlap returns the length of the longest suffix of buf that is
// also a proper prefix of tag (1..len(tag)-1), or 0 if none overlaps.
func longestOverlap(buf, tag string) int {
	max := len(buf)
	if len(tag)-1 < max {
		max = len(tag) - 1
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(buf, tag[:k]) {
			return k
		}
	}
	return 0
}
