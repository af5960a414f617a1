package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/hybrid-analyst/rag/document"
)

func TestParagraphChunkerIDsAndBlankParagraphs(t *testing.T) {
	ch := NewParagraphChunker()

	doc := document.Document{
		Source:   "marketing_calendar.md",
		Content:  "# Marketing Calendar\n\n\n\n## Summer Beverages 1997\n- Dates: 1997-06-01 to 1997-06-30\n\n   \n\n## Winter Classics 1997",
		Metadata: map[string]any{"kind": "markdown"},
	}

	chunks, err := ch.Chunk(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, want := range []string{"marketing_calendar::chunk0", "marketing_calendar::chunk1", "marketing_calendar::chunk2"} {
		if chunks[i].ID != want {
			t.Fatalf("chunk %d id = %q, want %q", i, chunks[i].ID, want)
		}
		if chunks[i].Source != "marketing_calendar.md" {
			t.Fatalf("chunk %d source = %q", i, chunks[i].Source)
		}
	}
	if !strings.HasPrefix(chunks[1].Content, "## Summer Beverages 1997") {
		t.Fatalf("unexpected second chunk %q", chunks[1].Content)
	}
	if chunks[0].Metadata["kind"] != "markdown" {
		t.Fatalf("expected metadata copy, got %#v", chunks[0].Metadata)
	}
}

func TestParagraphChunkerWindowsLongParagraphs(t *testing.T) {
	ch := NewParagraphChunker(WithChunkSize(10), WithOverlap(2))

	chunks, err := ch.Chunk(context.Background(), document.Document{ID: "d", Content: "abcdefghijklmnopqrstuvwxyz"})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(chunks))
	}
	if chunks[0].Content != "abcdefghij" || chunks[1].Content != "ijklmnopqr" {
		t.Fatalf("unexpected windows %q %q", chunks[0].Content, chunks[1].Content)
	}
	if chunks[2].ID != "d::chunk2" || chunks[2].Content != "qrstuvwxyz" {
		t.Fatalf("unexpected last window %q %q", chunks[2].ID, chunks[2].Content)
	}
}

func TestParagraphChunkerEmptyDocument(t *testing.T) {
	chunks, err := NewParagraphChunker().Chunk(context.Background(), document.Document{ID: "e", Content: "\n\n  \n\n"})
	if err != nil {
		t.Fatalf("chunk error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}
