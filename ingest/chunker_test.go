package ingest

import (
	"strings"
	"testing"
)

func TestChunkEmpty(t *testing.T) {
	c := NewParagraphChunker()
	if chunks := c.Chunk(""); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
	if chunks := c.Chunk("   \n\n  \t "); len(chunks) != 0 {
		t.Errorf("whitespace-only input should yield no chunks, got %d", len(chunks))
	}
}

func TestChunkShortText(t *testing.T) {
	c := NewParagraphChunker()
	chunks := c.Chunk("Sepsis requires prompt antibiotics.")
	if len(chunks) != 1 || chunks[0] != "Sepsis requires prompt antibiotics." {
		t.Errorf("unexpected chunks: %q", chunks)
	}
}

func TestChunkParagraphOrder(t *testing.T) {
	c := NewParagraphChunker()
	chunks := c.Chunk("First paragraph.\n\nSecond paragraph.\n\n\n\nThird.")
	want := []string{"First paragraph.", "Second paragraph.", "Third."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %q", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkOversizedParagraphExactWindows(t *testing.T) {
	c := NewParagraphChunker(WithMaxChars(512))
	text := strings.Repeat("a", 1024)
	chunks := c.Chunk(text)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) != 512 {
			t.Errorf("chunk %d length = %d, want 512", i, len(ch))
		}
	}
}

func TestChunkOversizedParagraphRemainder(t *testing.T) {
	c := NewParagraphChunker(WithMaxChars(100))
	text := strings.Repeat("b", 250)
	chunks := c.Chunk(text)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("window sizes = %d,%d,%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunkLengthBound(t *testing.T) {
	c := NewParagraphChunker(WithMaxChars(64))
	text := "Short.\n\n" + strings.Repeat("long paragraph content ", 30) + "\n\nTail."
	for i, ch := range c.Chunk(text) {
		if len(ch) > 64 {
			t.Errorf("chunk %d length %d exceeds max 64", i, len(ch))
		}
	}
}

func TestChunkRoundTripWhitespaceInsensitive(t *testing.T) {
	c := NewParagraphChunker(WithMaxChars(40))
	text := "Alpha beta gamma.\n\n  Delta epsilon.  \n\nZeta eta theta iota kappa lambda mu nu xi."
	joined := strings.Join(c.Chunk(text), "")

	strip := func(s string) string {
		return strings.Join(strings.Fields(s), "")
	}
	if strip(joined) != strip(text) {
		t.Errorf("round trip lost content:\n got %q\nwant %q", strip(joined), strip(text))
	}
}

func TestChunkDoesNotSplitRunes(t *testing.T) {
	c := NewParagraphChunker(WithMaxChars(5))
	text := strings.Repeat("é", 10) // 2 bytes each
	for i, ch := range c.Chunk(text) {
		if !strings.HasPrefix(ch, "é") {
			t.Errorf("chunk %d starts mid-rune: %q", i, ch)
		}
	}
}

func TestChunkCRLFNormalized(t *testing.T) {
	c := NewParagraphChunker()
	chunks := c.Chunk("One.\r\n\r\nTwo.")
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %q", len(chunks), chunks)
	}
}
