package convert

import (
	"strings"

	anthropictypes "github.com/kiro-gateway/kiro-gateway/pkg/anthropic"
)

// textPlaceholder substitutes for content that extracts to nothing;
// upstream rejects an empty userInputMessage.content (spec.md §4.4).
const textPlaceholder = "answer for user question"

// extractText concatenates the text of every "text" block and the
// recursively-extracted text of every "tool_result" block, joined by
// newlines, per spec.md §4.4.
func extractText(blocks []anthropictypes.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch v := b.(type) {
		case anthropictypes.TextBlock:
			parts = append(parts, v.Text)
		case anthropictypes.ToolResultBlock:
			inner, err := v.Blocks()
			if err == nil {
				if t := extractText(inner); t != "" {
					parts = append(parts, t)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

// messageText extracts a message's displayable text, substituting the
// placeholder when it would otherwise be empty.
func messageText(content []anthropictypes.ContentBlock) string {
	text := extractText(content)
	if text == "" {
		return textPlaceholder
	}
	return text
}

// InputText concatenates the request's system text and every message's
// text content, for the BPE input-token estimate spec.md §4.7 feeds
// identically to both the batch collector and the stream translator.
func InputText(req anthropictypes.Request) (string, error) {
	var parts []string

	sysBlocks, err := req.System.Blocks()
	if err != nil {
		return "", err
	}
	if t := extractText(sysBlocks); t != "" {
		parts = append(parts, t)
	}

	for _, msg := range req.Messages {
		blocks, err := msg.Blocks()
		if err != nil {
			return "", err
		}
		if t := extractText(blocks); t != "" {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, "\n"), nil
}
