package app

import (
	"strings"
	"testing"

	"chatpdf/internal/pkg/pdfextract"
)

func TestChunkPage_EmptyPage(t *testing.T) {
	chunks := ChunkPage(pdfextract.PageBlock{PageNumber: 1, Text: "   \n\t  "})
	if chunks != nil {
		t.Errorf("whitespace-only page should yield no chunks, got %d", len(chunks))
	}
}

func TestChunkPage_FlattensWhitespace(t *testing.T) {
	chunks := ChunkPage(pdfextract.PageBlock{PageNumber: 3, Text: "  hello \n\n  world \t again  "})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello world again" {
		t.Errorf("text = %q", chunks[0].Text)
	}
	if chunks[0].PageNumber != 3 {
		t.Errorf("page number = %d", chunks[0].PageNumber)
	}
}

func TestChunkPage_SizeBound(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 500; i++ {
		sb.WriteString("some sentence about the document. ")
	}
	chunks := ChunkPage(pdfextract.PageBlock{PageNumber: 1, Text: sb.String()})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > chunkByteCap {
			t.Errorf("chunk %d is %d bytes, cap is %d", i, len(c.Text), chunkByteCap)
		}
		if c.Text == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestChunkPage_StableHash(t *testing.T) {
	page := pdfextract.PageBlock{PageNumber: 1, Text: "identical content"}
	a := ChunkPage(page)
	b := ChunkPage(page)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected 1 chunk each, got %d and %d", len(a), len(b))
	}
	if a[0].Hash != b[0].Hash {
		t.Errorf("same text must hash identically: %s vs %s", a[0].Hash, b[0].Hash)
	}
	if len(a[0].Hash) != 32 {
		t.Errorf("expected 32 hex chars, got %q", a[0].Hash)
	}
}

func TestChunkPage_DifferentTextDifferentHash(t *testing.T) {
	a := ChunkPage(pdfextract.PageBlock{PageNumber: 1, Text: "first"})
	b := ChunkPage(pdfextract.PageBlock{PageNumber: 1, Text: "second"})
	if a[0].Hash == b[0].Hash {
		t.Error("different text must not collide on hash")
	}
}

func TestChunkPage_HardCutsUnbrokenText(t *testing.T) {
	// No separator at all: one 5000-byte word.
	chunks := ChunkPage(pdfextract.PageBlock{PageNumber: 1, Text: strings.Repeat("a", 5000)})
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > chunkByteCap {
			t.Errorf("chunk %d exceeds cap: %d bytes", i, len(c.Text))
		}
	}
}

func TestChunkPage_TruncatesOversizedPage(t *testing.T) {
	chunks := ChunkPage(pdfextract.PageBlock{PageNumber: 1, Text: strings.Repeat("x", pageByteCap+5000)})
	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	if total > pageByteCap {
		t.Errorf("total chunk bytes %d exceed page cap %d", total, pageByteCap)
	}
}

func TestTruncateBytes_RuneSafe(t *testing.T) {
	// "héllo" - é is 2 bytes starting at index 1.
	s := "héllo"
	got := truncateBytes(s, 2)
	if got != "h" {
		t.Errorf("expected cut before the multibyte rune, got %q", got)
	}
	if truncateBytes(s, 100) != s {
		t.Error("short strings must pass through unchanged")
	}
}
