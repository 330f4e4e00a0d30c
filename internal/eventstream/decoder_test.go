package eventstream

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFrame constructs a well-formed event-stream frame carrying payload,
// matching the prelude/trailer shape frame() expects: 4-byte total length,
// 4-byte header length, 4-byte prelude CRC, header bytes, payload, 4-byte
// message CRC. Headers and CRCs are zeroed; the decoder never checks them.
func buildFrame(headerLen int, payload []byte) []byte {
	total := preludeAndTrailerLen + headerLen + len(payload)
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], uint32(headerLen))
	copy(buf[12+headerLen:12+headerLen+len(payload)], payload)
	return buf
}

func TestDecodeAll_SingleFrame(t *testing.T) {
	frame := buildFrame(0, []byte(`{"content":"hello"}`))
	events := DecodeAll(frame)
	require.Len(t, events, 1)
	assert.True(t, events[0].HasContent)
	assert.Equal(t, "hello", events[0].Content)
	assert.Equal(t, EventAssistantResponse, events[0].Type)
}

func TestDecodeAll_MultipleFrames(t *testing.T) {
	var buf []byte
	buf = append(buf, buildFrame(0, []byte(`{"content":"a"}`))...)
	buf = append(buf, buildFrame(0, []byte(`{"content":"b"}`))...)

	events := DecodeAll(buf)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "b", events[1].Content)
}

func TestDecodeAll_TruncatedTrailingFrameDropped(t *testing.T) {
	var buf []byte
	buf = append(buf, buildFrame(0, []byte(`{"content":"a"}`))...)
	buf = append(buf, buildFrame(0, []byte(`{"content":"b"}`))[:5]...)

	events := DecodeAll(buf)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Content)
}

func TestDecodeAll_VentPrefixStripped(t *testing.T) {
	frame := buildFrame(0, []byte(`vent{"content":"hi"}`))
	events := DecodeAll(frame)
	require.Len(t, events, 1)
	assert.Equal(t, "hi", events[0].Content)
}

func TestDecodeAll_ToolUseClassification(t *testing.T) {
	frame := buildFrame(0, []byte(`{"toolUseId":"t1","name":"search"}`))
	events := DecodeAll(frame)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventToolUse, ev.Type)
	assert.True(t, ev.HasToolUseID)
	assert.Equal(t, "t1", ev.ToolUseID)
	assert.True(t, ev.HasName)
	assert.Equal(t, "search", ev.Name)
}

func TestDecodeAll_InitialResponseClassification(t *testing.T) {
	frame := buildFrame(0, []byte(`{"conversationId":"conv-1"}`))
	events := DecodeAll(frame)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventInitialResponse, ev.Type)
	assert.True(t, ev.HasConversationID)
	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.False(t, ev.HasContent)
}

func TestDecodeAll_StopAndStopReason(t *testing.T) {
	frame := buildFrame(0, []byte(`{"toolUseId":"t1","name":"search","stop":true,"stopReason":"MAX_LEN"}`))
	events := DecodeAll(frame)
	require.Len(t, events, 1)
	ev := events[0]
	assert.True(t, ev.HasStop)
	assert.True(t, ev.Stop)
	assert.Equal(t, "MAX_LEN", ev.StopReason)
}

func TestDecodeAll_InvalidJSONSkipped(t *testing.T) {
	frame := buildFrame(0, []byte(`not json`))
	events := DecodeAll(frame)
	assert.Empty(t, events)
}

func TestDecodeAll_EmptyInput(t *testing.T) {
	assert.Empty(t, DecodeAll(nil))
}

func TestIncrementalDecoder_SplitAcrossFeeds(t *testing.T) {
	frame := buildFrame(0, []byte(`{"content":"split"}`))

	dec := NewIncrementalDecoder()
	mid := len(frame) / 2

	events := dec.Feed(frame[:mid])
	assert.Empty(t, events, "no complete frame yet")

	events = dec.Feed(frame[mid:])
	require.Len(t, events, 1)
	assert.Equal(t, "split", events[0].Content)
}

func TestIncrementalDecoder_MultipleFramesOneFeed(t *testing.T) {
	var buf []byte
	buf = append(buf, buildFrame(0, []byte(`{"content":"a"}`))...)
	buf = append(buf, buildFrame(0, []byte(`{"content":"b"}`))...)

	dec := NewIncrementalDecoder()
	events := dec.Feed(buf)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "b", events[1].Content)
}

func TestIncrementalDecoder_ByteAtATime(t *testing.T) {
	frame := buildFrame(0, []byte(`{"content":"trickle"}`))

	dec := NewIncrementalDecoder()
	var got []Event
	for i := 0; i < len(frame); i++ {
		got = append(got, dec.Feed(frame[i:i+1])...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "trickle", got[0].Content)
}
