package app

import (
	"fmt"
	"strings"

	"chatpdf/internal/platform/pinecone"
)

// maxContextChars bounds the grounding context fed to the model.
const maxContextChars = 4000

// AssembleContext turns similarity matches into the grounding text block.
// Matches without text are dropped; the rest are labeled with their page
// and joined by blank lines, truncated to maxContextChars. The empty
// string is the deliberate "no relevant context found" signal, not an
// error.
func AssembleContext(matches []pinecone.Match) string {
	docs := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m.Metadata.Text) == "" {
			continue
		}
		label := "Unknown page"
		if m.Metadata.PageNumber > 0 {
			label = fmt.Sprintf("Page %d", m.Metadata.PageNumber)
		}
		docs = append(docs, label+": "+m.Metadata.Text)
	}
	if len(docs) == 0 {
		return ""
	}

	joined := strings.Join(docs, "\n\n")
	runes := []rune(joined)
	if len(runes) > maxContextChars {
		joined = string(runes[:maxContextChars])
	}
	return joined
}
