// Package chunker implements Component C4: splitting cleaned prose into
// overlapping, token-bounded spans.
package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Span is one chunked window: its detokenized text plus the token offsets
// it covers in the source, used as chunk-provenance metadata
// (chunk_index/startTok/endTok).
type Span struct {
	Text     string
	StartTok int
	EndTok   int
}

// DefaultMaxTokens and DefaultOverlap are the chunker's defaults (§4.4).
const (
	DefaultMaxTokens = 800
	DefaultOverlap   = 120
)

// Chunker tokenizes with a stable external tokenizer (tiktoken's
// cl100k_base encoding) so that chunk windows are defined over real token
// IDs, satisfying property P8 (lossless coverage modulo overlap) exactly.
type Chunker struct {
	enc *tiktoken.Tiktoken
}

// New returns a Chunker backed by the cl100k_base encoding.
func New() (*Chunker, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("chunker: loading tokenizer: %w", err)
	}
	return &Chunker{enc: enc}, nil
}

// Chunk splits text into windows of at most maxTokens tokens, advancing by
// maxTokens-overlap each step, and discards any window whose detokenized
// text is empty after trimming. overlap must be less than maxTokens.
func (c *Chunker) Chunk(text string, maxTokens, overlap int) ([]Span, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxTokens {
		return nil, fmt.Errorf("chunker: overlap (%d) must be less than max_tokens (%d)", overlap, maxTokens)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	tokens := c.enc.Encode(text, nil, nil)
	n := len(tokens)
	if n == 0 {
		return nil, nil
	}

	stride := maxTokens - overlap
	var spans []Span
	for start := 0; start < n; start += stride {
		end := start + maxTokens
		if end > n {
			end = n
		}
		decoded := strings.TrimSpace(c.enc.Decode(tokens[start:end]))
		if decoded != "" {
			spans = append(spans, Span{Text: decoded, StartTok: start, EndTok: end})
		}
		if end == n {
			break
		}
	}
	return spans, nil
}

// CountTokens returns the number of tokens text encodes to under the same
// encoding Chunk uses.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
