package app

import (
	"strings"
	"testing"

	"chatpdf/internal/platform/pinecone"
)

func TestAssembleContext_Empty(t *testing.T) {
	if got := AssembleContext(nil); got != "" {
		t.Errorf("no matches must produce the empty sentinel, got %q", got)
	}
	textless := []pinecone.Match{
		{ID: "a", Metadata: pinecone.Metadata{Text: "   ", PageNumber: 1}},
		{ID: "b", Metadata: pinecone.Metadata{Text: "", PageNumber: 2}},
	}
	if got := AssembleContext(textless); got != "" {
		t.Errorf("textless matches must produce the empty sentinel, got %q", got)
	}
}

func TestAssembleContext_LabelsAndJoin(t *testing.T) {
	matches := []pinecone.Match{
		{ID: "a", Score: 0.9, Metadata: pinecone.Metadata{Text: "first passage", PageNumber: 2}},
		{ID: "b", Score: 0.8, Metadata: pinecone.Metadata{Text: "second passage", PageNumber: 7}},
	}
	got := AssembleContext(matches)
	want := "Page 2: first passage\n\nPage 7: second passage"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAssembleContext_UnknownPage(t *testing.T) {
	matches := []pinecone.Match{
		{ID: "a", Metadata: pinecone.Metadata{Text: "orphan passage", PageNumber: 0}},
	}
	got := AssembleContext(matches)
	if got != "Unknown page: orphan passage" {
		t.Errorf("got %q", got)
	}
}

func TestAssembleContext_SkipsTextlessKeepsRest(t *testing.T) {
	matches := []pinecone.Match{
		{ID: "a", Metadata: pinecone.Metadata{Text: "", PageNumber: 1}},
		{ID: "b", Metadata: pinecone.Metadata{Text: "kept", PageNumber: 4}},
	}
	got := AssembleContext(matches)
	if got != "Page 4: kept" {
		t.Errorf("got %q", got)
	}
}

func TestAssembleContext_CapsLength(t *testing.T) {
	matches := []pinecone.Match{
		{ID: "a", Metadata: pinecone.Metadata{Text: strings.Repeat("x", 3000), PageNumber: 1}},
		{ID: "b", Metadata: pinecone.Metadata{Text: strings.Repeat("y", 3000), PageNumber: 2}},
	}
	got := AssembleContext(matches)
	if n := len([]rune(got)); n != maxContextChars {
		t.Errorf("expected exactly %d chars after truncation, got %d", maxContextChars, n)
	}
}
