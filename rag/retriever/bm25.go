package retriever

import (
	"math"
	"regexp"
	"strings"

	"github.com/sweetpotato0/hybrid-analyst/rag/document"
)

// bm25Index is immutable once built; the retriever swaps in a new one on
// every reindex.
type bm25Index struct {
	docFreq     map[string]int
	postings    map[string]map[int]int // term -> chunk position -> tf
	chunkLength []int
	totalLength int
	k1          float64
	b           float64
}

var bm25Regex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func newBM25(k1, b float64, chunks []document.Chunk) *bm25Index {
	idx := &bm25Index{
		docFreq:     make(map[string]int),
		postings:    make(map[string]map[int]int),
		chunkLength: make([]int, len(chunks)),
		k1:          k1,
		b:           b,
	}
	for i, chunk := range chunks {
		idx.add(i, chunk)
	}
	return idx
}

func (b *bm25Index) add(pos int, chunk document.Chunk) {
	terms := tokenize(chunk.Content)
	b.chunkLength[pos] = len(terms)
	b.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := b.postings[term]; !ok {
			b.postings[term] = make(map[int]int)
		}
		b.postings[term][pos]++
		if _, exists := seen[term]; !exists {
			b.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

// scores returns one score per chunk position. Chunks sharing no term with
// the query score 0.
func (b *bm25Index) scores(query string) []float64 {
	out := make([]float64, len(b.chunkLength))
	terms := unique(tokenize(query))
	docCount := len(b.chunkLength)
	if len(terms) == 0 || docCount == 0 || b.totalLength == 0 {
		return out
	}
	avgLen := float64(b.totalLength) / float64(docCount)
	for _, term := range terms {
		postings := b.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := b.docFreq[term]
		idf := math.Log((float64(docCount)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for pos, tf := range postings {
			docLen := float64(b.chunkLength[pos])
			numerator := float64(tf) * (b.k1 + 1)
			denominator := float64(tf) + b.k1*(1-b.b+b.b*(docLen/avgLen))
			out[pos] += idf * (numerator / denominator)
		}
	}
	return out
}

func tokenize(content string) []string {
	return bm25Regex.FindAllString(strings.ToLower(content), -1)
}

func unique(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
