package chunking

import (
	"context"
	"strings"

	"github.com/sweetpotato0/hybrid-analyst/rag/document"
)

// Chunker splits documents into retrievable passages.
type Chunker interface {
	Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error)
}

type Options struct {
	ChunkSize   int // max runes per chunk; 0 keeps paragraphs whole
	Overlap     int
	Separator   string
	IncludeMeta bool
}

// ParagraphChunker splits documents on a separator, drops blank paragraphs and
// optionally windows paragraphs longer than ChunkSize.
type ParagraphChunker struct {
	size    int
	overlap int
	sep     string
	addMeta bool
}

// Option customizes the paragraph chunker.
type Option func(*Options)

// WithChunkSize enables windowing of long paragraphs (runes).
func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size >= 0 {
			o.ChunkSize = size
		}
	}
}

// WithOverlap configures overlap (runes) between consecutive windows.
func WithOverlap(overlap int) Option {
	return func(o *Options) {
		if overlap >= 0 {
			o.Overlap = overlap
		}
	}
}

// WithSeparator sets the paragraph separator.
func WithSeparator(sep string) Option {
	return func(o *Options) {
		if sep != "" {
			o.Separator = sep
		}
	}
}

// WithMetadataCopy toggles whether document metadata should be copied to chunks.
func WithMetadataCopy(enabled bool) Option {
	return func(o *Options) {
		o.IncludeMeta = enabled
	}
}

// NewParagraphChunker constructs a chunker. By default every non-blank
// paragraph becomes exactly one chunk.
func NewParagraphChunker(opts ...Option) *ParagraphChunker {
	cfg := &Options{
		Separator:   "\n\n",
		IncludeMeta: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ChunkSize > 0 && cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = cfg.ChunkSize / 4
	}
	return &ParagraphChunker{
		size:    cfg.ChunkSize,
		overlap: cfg.Overlap,
		sep:     cfg.Separator,
		addMeta: cfg.IncludeMeta,
	}
}

// Chunk splits the document. Chunk ordinals count from zero over the emitted
// chunks, so ids are <doc>::chunk0, <doc>::chunk1, ...
func (c *ParagraphChunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	document.EnsureDocumentID(&doc)

	parts := strings.Split(doc.Content, c.sep)
	chunks := make([]document.Chunk, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for _, window := range c.windows(part) {
			chunks = append(chunks, c.newChunk(doc, len(chunks), window))
		}
	}
	return chunks, nil
}

func (c *ParagraphChunker) windows(part string) []string {
	runes := []rune(part)
	if c.size <= 0 || len(runes) <= c.size {
		return []string{part}
	}
	var out []string
	for len(runes) > c.size {
		out = append(out, strings.TrimSpace(string(runes[:c.size])))
		runes = runes[c.size-c.overlap:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		out = append(out, rest)
	}
	return out
}

func (c *ParagraphChunker) newChunk(doc document.Document, ordinal int, content string) document.Chunk {
	chunk := document.Chunk{
		ID:         document.ChunkID(doc.ID, ordinal),
		DocumentID: doc.ID,
		Source:     doc.Source,
		Content:    content,
		Ordinal:    ordinal,
	}
	if c.addMeta && doc.Metadata != nil {
		chunk.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			chunk.Metadata[k] = v
		}
	}
	return chunk
}
