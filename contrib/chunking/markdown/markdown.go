// Package markdown chunks markdown documents by heading so each passage is one
// titled section of a policy or definitions page.
package markdown

import (
	"context"
	"maps"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sweetpotato0/hybrid-analyst/rag/chunking"
	"github.com/sweetpotato0/hybrid-analyst/rag/document"
)

// Chunker splits markdown by heading hierarchy using a goldmark AST.
type Chunker struct {
	maxHeadingLevel int
	maxRunes        int
	minRunes        int
	fallback        chunking.Chunker
	parser          goldmark.Markdown
}

var _ chunking.Chunker = (*Chunker)(nil)

// Option customises the markdown chunker.
type Option func(*Chunker)

// WithMaxHeadingLevel caps which heading level starts a new chunk (default 3).
func WithMaxHeadingLevel(level int) Option {
	return func(c *Chunker) {
		if level > 0 {
			c.maxHeadingLevel = level
		}
	}
}

// WithMaxRunes hands sections longer than this to the fallback chunker.
func WithMaxRunes(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxRunes = n
		}
	}
}

// WithMinRunes merges a short section into the one that follows it.
func WithMinRunes(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minRunes = n
		}
	}
}

// WithFallbackChunker swaps the chunker used for oversized sections.
func WithFallbackChunker(ch chunking.Chunker) Option {
	return func(c *Chunker) {
		if ch != nil {
			c.fallback = ch
		}
	}
}

// New creates a markdown chunker. Oversized sections are split into
// paragraphs by default.
func New(opts ...Option) *Chunker {
	ch := &Chunker{
		maxHeadingLevel: 3,
		maxRunes:        1200,
		parser:          goldmark.New(),
		fallback:        chunking.NewParagraphChunker(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ch)
		}
	}
	return ch
}

// Chunk implements chunking.Chunker. Ids follow <doc>::chunk<n> over the
// emitted chunks and each chunk carries its section title in metadata.
func (c *Chunker) Chunk(ctx context.Context, doc document.Document) ([]document.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	document.EnsureDocumentID(&doc)

	sections := c.mergeShort(c.split(doc.Content))
	chunks := make([]document.Chunk, 0, len(sections))
	emit := func(content string, meta map[string]any) {
		n := len(chunks)
		chunks = append(chunks, document.Chunk{
			ID:         document.ChunkID(doc.ID, n),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Content:    content,
			Ordinal:    n,
			Metadata:   merge(doc.Metadata, meta),
		})
	}

	for _, sec := range sections {
		if len([]rune(sec.raw)) <= c.maxRunes {
			emit(sec.raw, sec.metadata())
			continue
		}
		parts, err := c.fallback.Chunk(ctx, document.Document{ID: doc.ID, Source: doc.Source, Content: sec.raw})
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			emit(part.Content, sec.metadata())
		}
	}
	return chunks, nil
}

type section struct {
	raw   string
	level int
	title string
}

func (s section) metadata() map[string]any {
	if s.title == "" {
		return nil
	}
	return map[string]any{"section_title": s.title, "section_level": s.level}
}

type heading struct {
	start int
	level int
	title string
}

// split cuts the content at every heading up to maxHeadingLevel. Text before
// the first heading becomes an untitled section.
func (c *Chunker) split(content string) []section {
	source := []byte(content)
	root := c.parser.Parser().Parse(text.NewReader(source))

	var headings []heading
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		h, ok := n.(*ast.Heading)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		lines := h.Lines()
		if h.Level > c.maxHeadingLevel || lines == nil || lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		// Lines start after the "#" marker; back up to the start of the line.
		start := lines.At(0).Start
		for start > 0 && source[start-1] != '\n' {
			start--
		}
		headings = append(headings, heading{
			start: start,
			level: h.Level,
			title: strings.TrimSpace(string(lines.Value(source))),
		})
		return ast.WalkSkipChildren, nil
	})

	var out []section
	add := func(s section) {
		if s.raw = strings.TrimSpace(s.raw); s.raw != "" {
			out = append(out, s)
		}
	}
	if len(headings) == 0 {
		add(section{raw: content})
		return out
	}
	add(section{raw: content[:headings[0].start]})
	for i, h := range headings {
		end := len(content)
		if i+1 < len(headings) {
			end = headings[i+1].start
		}
		add(section{raw: content[h.start:end], level: h.level, title: h.title})
	}
	return out
}

func (c *Chunker) mergeShort(sections []section) []section {
	if c.minRunes <= 0 || len(sections) < 2 {
		return sections
	}
	merged := make([]section, 0, len(sections))
	var pending *section
	for i, sec := range sections {
		if pending != nil {
			head := *pending
			if head.title == "" {
				head.level, head.title = sec.level, sec.title
			}
			head.raw += "\n\n" + sec.raw
			sec, pending = head, nil
		}
		if len([]rune(sec.raw)) < c.minRunes && i < len(sections)-1 {
			pending = &sec
			continue
		}
		merged = append(merged, sec)
	}
	return merged
}

func merge(base, extra map[string]any) map[string]any {
	if base == nil && extra == nil {
		return nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(extra))
	}
	maps.Copy(out, extra)
	return out
}
