// Package tokencount provides the best-effort token estimate spec.md §4.6
// calls for: a BPE count using the cl100k_base vocabulary when the encoder
// can be loaded, falling back to a character-count heuristic otherwise.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoder() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		// GetEncoding hits the network on first use in upstream tiktoken-go
		// to fetch the vocabulary file; any failure (offline, blocked egress)
		// leaves enc nil and Count falls back to the heuristic.
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// Count estimates the number of tokens in text.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if e := encoder(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return heuristic(text)
}

// heuristic is the max(1, len/4) fallback spec.md §4.6 specifies.
func heuristic(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}
