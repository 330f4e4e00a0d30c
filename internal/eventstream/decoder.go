// Package eventstream decodes the binary AWS Event-Stream framing used by
// CodeWhisperer's generateAssistantResponse response. Unlike a CRC-checking
// decoder, this one deliberately skips CRC verification and header parsing
// (the upstream only ever needs the JSON payload) and tolerates a truncated
// trailing frame, since the gateway proxies a live connection that can be
// cut at any byte boundary.
package eventstream

import (
	"encoding/binary"
	"encoding/json"
	"strings"
)

// preludeAndTrailerLen is the 4-byte total length + 4-byte header length +
// 4-byte prelude CRC + 4-byte trailing message CRC that bracket every frame.
const preludeAndTrailerLen = 16

// EventType classifies a decoded payload by the fields it carries, per
// spec.md §4.1.
type EventType int

const (
	EventAssistantResponse EventType = iota
	EventInitialResponse
	EventToolUse
)

// Event is one decoded CodeWhisperer payload. The Has* flags distinguish
// "field absent" from "field present but empty", which matters for tool
// fragments: a fragment frame carries Input but, unlike a start/stop
// frame, usually no ToolUseID/Name at all.
type Event struct {
	Type EventType

	HasContent bool
	Content    string

	HasInput bool
	Input    string

	HasName bool
	Name    string

	HasToolUseID bool
	ToolUseID    string

	HasStop bool
	Stop    bool

	HasConversationID bool
	ConversationID    string

	// StopReason carries an upstream-provided stop reason when present
	// (e.g. "MAX_LEN"), seen in original_source/app/response_parser.py but
	// not documented in every payload shape; empty when absent.
	StopReason string
}

type rawPayload struct {
	Content        *string `json:"content"`
	Input          *string `json:"input"`
	Name           *string `json:"name"`
	ToolUseID      *string `json:"toolUseId"`
	Stop           *bool   `json:"stop"`
	ConversationID *string `json:"conversationId"`
	StopReason     *string `json:"stopReason"`
}

func classify(p rawPayload) EventType {
	switch {
	case p.ToolUseID != nil && p.Name != nil:
		return EventToolUse
	case p.ConversationID != nil && p.Content == nil:
		return EventInitialResponse
	default:
		return EventAssistantResponse
	}
}

// decodePayload strips the "vent" artefact prefix (an overlap between a
// header tail and the payload start in the upstream's encoding) and parses
// the remaining JSON object.
func decodePayload(payload []byte) (Event, bool) {
	text := strings.TrimPrefix(string(payload), "vent")

	var raw rawPayload
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Event{}, false
	}

	ev := Event{Type: classify(raw)}
	if raw.Content != nil {
		ev.HasContent, ev.Content = true, *raw.Content
	}
	if raw.Input != nil {
		ev.HasInput, ev.Input = true, *raw.Input
	}
	if raw.Name != nil {
		ev.HasName, ev.Name = true, *raw.Name
	}
	if raw.ToolUseID != nil {
		ev.HasToolUseID, ev.ToolUseID = true, *raw.ToolUseID
	}
	if raw.Stop != nil {
		ev.HasStop, ev.Stop = true, *raw.Stop
	}
	if raw.ConversationID != nil {
		ev.HasConversationID, ev.ConversationID = true, *raw.ConversationID
	}
	if raw.StopReason != nil {
		ev.StopReason = *raw.StopReason
	}
	return ev, true
}

// frame extracts one frame's payload from buf, returning the payload bytes
// and the number of bytes the frame occupied. ok is false when buf does not
// yet contain a complete frame (incremental mode should wait for more data);
// in bulk mode the caller treats "not ok" as "stop, trailing bytes are a
// truncated tail".
func frame(buf []byte) (payload []byte, consumed int, ok bool) {
	if len(buf) < preludeAndTrailerLen {
		return nil, 0, false
	}

	totalLen := binary.BigEndian.Uint32(buf[0:4])
	headerLen := binary.BigEndian.Uint32(buf[4:8])

	if totalLen > uint32(len(buf)) {
		return nil, 0, false
	}
	if totalLen < preludeAndTrailerLen+headerLen {
		// PayloadLen would be negative; stop decoding cleanly.
		return nil, 0, false
	}

	payloadLen := totalLen - headerLen - preludeAndTrailerLen
	payloadStart := 12 + headerLen
	payloadEnd := payloadStart + payloadLen

	return buf[payloadStart:payloadEnd], int(totalLen), true
}

// DecodeAll decodes every complete frame in a closed byte slice. A
// truncated trailing frame is dropped silently and decoding ends cleanly,
// per spec.md invariant 3.
func DecodeAll(data []byte) []Event {
	var events []Event
	buf := data
	for {
		payload, n, ok := frame(buf)
		if !ok {
			return events
		}
		if ev, parsed := decodePayload(payload); parsed {
			events = append(events, ev)
		}
		buf = buf[n:]
		if len(buf) == 0 {
			return events
		}
	}
}

// IncrementalDecoder buffers chunks of a live byte stream and yields
// complete frames as soon as they're available, for use by the streaming
// proxy path (C6).
type IncrementalDecoder struct {
	buf []byte
}

// NewIncrementalDecoder creates an empty incremental decoder.
func NewIncrementalDecoder() *IncrementalDecoder {
	return &IncrementalDecoder{}
}

// Feed appends a chunk and returns every event that became decodable as a
// result. Partial trailing bytes remain buffered for the next call.
func (d *IncrementalDecoder) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		payload, n, ok := frame(d.buf)
		if !ok {
			return events
		}
		if ev, parsed := decodePayload(payload); parsed {
			events = append(events, ev)
		}
		d.buf = d.buf[n:]
	}
}
