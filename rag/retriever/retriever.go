package retriever

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
	"github.com/sweetpotato0/hybrid-analyst/rag/chunking"
	"github.com/sweetpotato0/hybrid-analyst/rag/document"
)

// Config controls retrieval behaviour.
type Config struct {
	K1      float64
	B       float64
	Chunker chunking.Chunker
	Logger  *slog.Logger
}

// Option customizes retriever config.
type Option func(*Config)

// WithBM25 overrides the BM25 saturation (k1) and length normalisation (b).
func WithBM25(k1, b float64) Option {
	return func(cfg *Config) {
		if k1 > 0 && b >= 0 && b <= 1 {
			cfg.K1 = k1
			cfg.B = b
		}
	}
}

// WithChunker overrides the paragraph chunker.
func WithChunker(ch chunking.Chunker) Option {
	return func(cfg *Config) {
		if ch != nil {
			cfg.Chunker = ch
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	}
}

// Retriever is a keyword retriever over an in-memory corpus. Results are
// deterministic: equal scores keep corpus order.
type Retriever struct {
	cfg Config

	mu        sync.RWMutex
	documents []document.Document
	chunks    []document.Chunk
	index     *bm25Index
	digest    string
}

var _ analyst.Retriever = (*Retriever)(nil)

// New creates an empty retriever.
func New(opts ...Option) *Retriever {
	cfg := Config{
		K1:      1.6,
		B:       0.75,
		Chunker: chunking.NewParagraphChunker(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("retriever")
	}
	r := &Retriever{cfg: cfg}
	r.index = newBM25(cfg.K1, cfg.B, nil)
	r.digest = digestOf(nil)
	return r
}

// IndexDocuments adds documents to the corpus. A document whose ID is already
// indexed replaces the earlier version in place.
func (r *Retriever) IndexDocuments(ctx context.Context, docs ...document.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	documents := append([]document.Document(nil), r.documents...)
	positions := make(map[string]int, len(documents))
	for i, d := range documents {
		positions[d.ID] = i
	}
	for _, doc := range docs {
		document.EnsureDocumentID(&doc)
		if i, ok := positions[doc.ID]; ok {
			documents[i] = doc.Clone()
			continue
		}
		positions[doc.ID] = len(documents)
		documents = append(documents, doc.Clone())
	}

	var chunks []document.Chunk
	for _, doc := range documents {
		parts, err := r.cfg.Chunker.Chunk(ctx, doc)
		if err != nil {
			return fmt.Errorf("chunk document %s: %w", doc.ID, err)
		}
		chunks = append(chunks, parts...)
	}

	r.documents = documents
	r.chunks = chunks
	r.index = newBM25(r.cfg.K1, r.cfg.B, chunks)
	r.digest = digestOf(chunks)
	r.cfg.Logger.Info("corpus indexed", "documents", len(documents), "chunks", len(chunks), "digest", r.digest[:12])
	return nil
}

// Retrieve returns the k highest scoring chunks for the question.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]analyst.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", apperr.ErrInvalidInput, k)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.chunks) == 0 {
		return []analyst.Passage{}, nil
	}

	scores := r.index.scores(question)
	order := make([]int, len(r.chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	if len(order) > k {
		order = order[:k]
	}

	out := make([]analyst.Passage, 0, len(order))
	for _, i := range order {
		c := r.chunks[i]
		out = append(out, analyst.Passage{
			ID:      c.ID,
			Content: c.Content,
			Source:  c.Source,
			Score:   scores[i],
		})
	}
	return out, nil
}

// Digest identifies the indexed corpus content. It changes whenever any chunk
// id or text changes.
func (r *Retriever) Digest() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.digest
}

// Count returns the number of indexed chunks.
func (r *Retriever) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Document fetches a document by ID.
func (r *Retriever) Document(id string) (document.Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.documents {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return document.Document{}, false
}

// Clear drops all indexed state.
func (r *Retriever) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = nil
	r.chunks = nil
	r.index = newBM25(r.cfg.K1, r.cfg.B, nil)
	r.digest = digestOf(nil)
}

func digestOf(chunks []document.Chunk) string {
	h := blake3.New()
	for _, c := range chunks {
		_, _ = h.Write([]byte(c.ID))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(strings.TrimSpace(c.Content)))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
