// Package ingest turns reference documents into embedded, tenant-scoped
// vector points: extract text, split into bounded chunks, embed in one
// batch, upsert.
package ingest

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the chunk size bound when no option overrides it.
const DefaultMaxChars = 512

// Chunker splits text into chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// ChunkerOption configures a chunker.
type ChunkerOption func(*ParagraphChunker)

// WithMaxChars sets the maximum characters per chunk.
func WithMaxChars(n int) ChunkerOption {
	return func(c *ParagraphChunker) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// ParagraphChunker splits text on blank-line boundaries, slicing any
// oversized paragraph into consecutive fixed windows. It is pure and
// deterministic: the same text always yields the same chunks, in paragraph
// order.
type ParagraphChunker struct {
	maxChars int
}

var _ Chunker = (*ParagraphChunker)(nil)

// NewParagraphChunker creates a ParagraphChunker with the given options.
func NewParagraphChunker(opts ...ChunkerOption) *ParagraphChunker {
	c := &ParagraphChunker{maxChars: DefaultMaxChars}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Chunk splits text into chunks of at most maxChars. Each non-empty,
// trimmed paragraph becomes a candidate unit; a paragraph longer than
// maxChars is sliced into full windows plus a shorter trailing remainder.
// Whitespace-only input yields nothing; if splitting produces no chunks
// but the trimmed text is non-empty, the whole trimmed text becomes one
// chunk.
func (c *ParagraphChunker) Chunk(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > c.maxChars {
			cut := runeBoundary(para, c.maxChars)
			chunks = append(chunks, para[:cut])
			para = para[cut:]
		}
		chunks = append(chunks, para)
	}

	if len(chunks) == 0 {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

// runeBoundary returns the largest cut <= max that does not split a rune.
func runeBoundary(s string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}
