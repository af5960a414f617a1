// Package loader reads a corpus directory into cleaned documents.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/rag/document"
	"github.com/sweetpotato0/hybrid-analyst/rag/preprocess"
)

// DefaultPatterns matches top-level markdown files.
var DefaultPatterns = []string{"*.md"}

// Loader reads matching files from a file system.
type Loader struct {
	fsys     fs.FS
	patterns []string
}

// New returns a loader over dir. Patterns use doublestar syntax ("**/*.md");
// an empty list means DefaultPatterns.
func New(dir string, patterns ...string) (*Loader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("corpus dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: corpus path %s is not a directory", apperr.ErrInvalidInput, dir)
	}
	return NewFS(os.DirFS(dir), patterns...)
}

// NewFS returns a loader over an arbitrary file system.
func NewFS(fsys fs.FS, patterns ...string) (*Loader, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: bad corpus pattern %q", apperr.ErrInvalidInput, p)
		}
	}
	return &Loader{fsys: fsys, patterns: append([]string(nil), patterns...)}, nil
}

// Load returns the matching documents sorted by path. Markdown is cleaned;
// HTML is converted to text first.
func (l *Loader) Load(ctx context.Context) ([]document.Document, error) {
	paths, err := l.match()
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := l.read(p)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (l *Loader) match() ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range l.patterns {
		matches, err := doublestar.Glob(l.fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *Loader) read(p string) (document.Document, error) {
	raw, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return document.Document{}, err
	}

	doc := document.Document{
		Source:   path.Base(p),
		Metadata: map[string]any{"path": p},
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm":
		page, err := preprocess.HTML(string(raw))
		if err != nil {
			return document.Document{}, fmt.Errorf("%s: %w", p, err)
		}
		doc.Content = page.Text
		doc.Title = page.Title
		doc.Metadata["format"] = "html"
	default:
		doc.Content = preprocess.Markdown(string(raw))
		doc.Title = markdownTitle(doc.Content)
		doc.Metadata["format"] = "markdown"
	}
	document.EnsureDocumentID(&doc)
	return doc, nil
}

func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if title, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(title)
		}
	}
	return ""
}
