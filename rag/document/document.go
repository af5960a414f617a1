package document

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Document is one corpus file after loading and cleanup.
type Document struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk is one retrievable passage of a document.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Source     string         `json:"source"`
	Content    string         `json:"content"`
	Ordinal    int            `json:"ordinal"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

var docCounter atomic.Int64

// EnsureDocumentID makes sure every document has an identifier. Documents with
// a source take the file stem; anything else gets a generated id.
func EnsureDocumentID(doc *Document) {
	if doc == nil || doc.ID != "" {
		return
	}
	if doc.Source != "" {
		doc.ID = Stem(doc.Source)
		return
	}
	doc.ID = fmt.Sprintf("doc_%d", docCounter.Add(1))
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ChunkID returns the identifier of the ordinal-th chunk of a document,
// formatted as <doc>::chunk<ordinal>.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s::chunk%d", docID, ordinal)
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Metadata = maps.Clone(d.Metadata)
	return out
}

// Clone returns a deep copy of the chunk.
func (c Chunk) Clone() Chunk {
	out := c
	out.Metadata = maps.Clone(c.Metadata)
	return out
}
