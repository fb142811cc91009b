// Package chunker splits uploaded filing text into overlapping windows
// sized for the embeddings API.
package chunker

import (
	"strings"
)

// Options controls how filing text is chunked.
type Options struct {
	MaxTokens int
	Overlap   int
}

// Chunk is one window of the filing text.
type Chunk struct {
	Index      int
	Text       string
	TokenCount int
}

const defaultMaxTokens = 400

// Split performs a token-based sliding window with overlap. Tokens are
// approximated by whitespace-delimited words; filings are prose and tables
// flattened to text, so the approximation holds well enough for embedding.
func Split(text string, opts Options) []Chunk {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := opts.MaxTokens - opts.Overlap
	if step <= 0 {
		step = opts.MaxTokens
	}

	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + opts.MaxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       strings.Join(words[start:end], " "),
			TokenCount: end - start,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
