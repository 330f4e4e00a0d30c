// Package ssewriter formats Anthropic Messages SSE events: event: <name>
// followed by data: <compact json>, blank-line terminated. It mirrors the
// shape of providerutils/streaming.SSEWriter in the wider AI SDK this
// gateway's translation layer is modeled on, but is a pure formatter with
// no framing state of its own.
package ssewriter

import (
	"encoding/json"
	"fmt"
	"io"
)

// Writer emits Anthropic-format SSE records to an underlying writer.
type Writer struct {
	w io.Writer
}

// New wraps w as an SSE event writer.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent serializes payload as compact JSON (preserving non-ASCII
// characters rather than \u-escaping them) and writes one SSE record. An
// empty event name or a nil payload is a no-op, matching the teacher's
// emitter contract.
func (w *Writer) WriteEvent(event string, payload interface{}) error {
	if event == "" || payload == nil {
		return nil
	}

	data, err := marshalPreservingUnicode(payload)
	if err != nil {
		return fmt.Errorf("marshaling sse payload for %q: %w", event, err)
	}

	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if f, ok := w.w.(flusher); ok {
		f.Flush()
	}
	return nil
}

type flusher interface {
	Flush()
}

func marshalPreservingUnicode(v interface{}) ([]byte, error) {
	var buf []byte
	enc := json.NewEncoder(sliceWriter{&buf})
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; strip it so the
	// caller controls the record's line structure.
	if n := len(buf); n > 0 && buf[n-1] == '\n' {
		buf = buf[:n-1]
	}
	return buf, nil
}

type sliceWriter struct{ buf *[]byte }

func (s sliceWriter) Write(p []byte) (int, error) {
	*s.buf = append(*s.buf, p...)
	return len(p), nil
}
