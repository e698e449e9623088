package app

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"chatpdf/internal/pkg/pdfextract"
)

const (
	// pageByteCap bounds the text taken from a single page before splitting.
	pageByteCap = 30000
	// chunkByteCap bounds each chunk so it fits the embedding input limit.
	chunkByteCap = 1000
)

// splitSeparators are tried in order: paragraph, line, sentence, word.
// Text that cannot be split on any of them is hard-cut on rune boundaries.
var splitSeparators = []string{"\n\n", "\n", ". ", " "}

// Chunk is the unit of embedding and indexing. Hash is the md5 of Text and
// serves as the chunk's identity in the vector index, so identical text
// always maps to the same record.
type Chunk struct {
	PageNumber int
	Text       string
	Hash       string
}

// ChunkPage splits one page's text into size-bounded chunks. The page text
// is whitespace-flattened and truncated to pageByteCap before splitting;
// pages with no extractable text yield no chunks. Chunk order is append
// order within the page.
func ChunkPage(page pdfextract.PageBlock) []Chunk {
	text := strings.Join(strings.Fields(page.Text), " ")
	if text == "" {
		return nil
	}
	text = truncateBytes(text, pageByteCap)

	pieces := splitRecursive(text, splitSeparators, chunkByteCap)
	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			PageNumber: page.PageNumber,
			Text:       piece,
			Hash:       hashText(piece),
		})
	}
	return chunks
}

func hashText(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// splitRecursive splits text into pieces of at most maxBytes, preferring
// the earliest separator that applies and merging adjacent small pieces.
func splitRecursive(text string, separators []string, maxBytes int) []string {
	if len(text) <= maxBytes {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardCut(text, maxBytes)
	}

	parts := strings.SplitAfter(text, separators[0])
	var out []string
	var current strings.Builder
	for _, part := range parts {
		if len(part) > maxBytes {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			out = append(out, splitRecursive(part, separators[1:], maxBytes)...)
			continue
		}
		if current.Len()+len(part) > maxBytes {
			out = append(out, current.String())
			current.Reset()
		}
		current.WriteString(part)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// hardCut slices text into maxBytes windows without splitting a rune.
func hardCut(text string, maxBytes int) []string {
	var out []string
	var current strings.Builder
	for _, r := range text {
		if current.Len()+len(string(r)) > maxBytes {
			out = append(out, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
