package retriever

import (
	"context"
	"errors"
	"reflect"
	"testing"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
	"github.com/sweetpotato0/hybrid-analyst/rag/document"
)

func corpus() []document.Document {
	return []document.Document{
		{Source: "product_policy.md", Content: "# Returns & Policy\n\nPerishables (Produce, Seafood, Dairy): 3–7 days.\n\nBeverages unopened: 14 days; opened: no returns."},
		{Source: "kpi_definitions.md", Content: "# KPI Definitions\n\nAverage Order Value (AOV) = SUM(UnitPrice * Quantity * (1 - Discount)) / COUNT(DISTINCT OrderID)."},
		{Source: "marketing_calendar.md", Content: "# Northwind Marketing Calendar (1997)\n\n## Summer Beverages 1997\n- Dates: 1997-06-01 to 1997-06-30"},
	}
}

func newIndexed(t *testing.T) *Retriever {
	t.Helper()
	r := New(WithLogger(logging.Discard()))
	if err := r.IndexDocuments(context.Background(), corpus()...); err != nil {
		t.Fatalf("IndexDocuments returned error: %v", err)
	}
	return r
}

func TestRetrieveRanksByKeywordMatch(t *testing.T) {
	r := newIndexed(t)

	got, err := r.Retrieve(context.Background(), "return window for unopened Beverages", 3)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 passages, got %d", len(got))
	}
	if got[0].ID != "product_policy::chunk2" || got[0].Source != "product_policy.md" {
		t.Fatalf("unexpected top passage %+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("passages not sorted by score: %v", got)
		}
	}
}

func TestRetrieveIsIdempotent(t *testing.T) {
	r := newIndexed(t)

	first, err := r.Retrieve(context.Background(), "AOV definition", 4)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	second, err := r.Retrieve(context.Background(), "AOV definition", 4)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ between calls:\n%v\n%v", first, second)
	}
	if first[0].ID != "kpi_definitions::chunk1" {
		t.Fatalf("unexpected top passage %q", first[0].ID)
	}
}

func TestTiesKeepCorpusOrder(t *testing.T) {
	r := newIndexed(t)

	got, err := r.Retrieve(context.Background(), "zzz-nothing-matches", 3)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	want := []string{"product_policy::chunk0", "product_policy::chunk1", "product_policy::chunk2"}
	for i, p := range got {
		if p.ID != want[i] || p.Score != 0 {
			t.Fatalf("passage %d = %s (%v), want %s with score 0", i, p.ID, p.Score, want[i])
		}
	}
}

func TestReindexReplacesDocumentAndChangesDigest(t *testing.T) {
	r := newIndexed(t)
	before := r.Digest()
	count := r.Count()

	if err := r.IndexDocuments(context.Background(), corpus()[1]); err != nil {
		t.Fatalf("IndexDocuments returned error: %v", err)
	}
	if r.Count() != count || r.Digest() != before {
		t.Fatalf("reindexing identical content should be a no-op: %d/%d %s/%s", r.Count(), count, r.Digest(), before)
	}

	changed := corpus()[1]
	changed.Content += "\n\nGross margin = revenue - cost."
	if err := r.IndexDocuments(context.Background(), changed); err != nil {
		t.Fatalf("IndexDocuments returned error: %v", err)
	}
	if r.Count() != count+1 {
		t.Fatalf("expected %d chunks, got %d", count+1, r.Count())
	}
	if r.Digest() == before {
		t.Fatal("digest should change with content")
	}
	if doc, ok := r.Document("kpi_definitions"); !ok || doc.Content != changed.Content {
		t.Fatalf("document not replaced: %+v", doc)
	}
}

func TestRetrieveEdgeCases(t *testing.T) {
	empty := New(WithLogger(logging.Discard()))
	got, err := empty.Retrieve(context.Background(), "anything", 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty corpus should return no passages: %v %v", got, err)
	}
	if _, err := empty.Retrieve(context.Background(), "anything", 0); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	r := newIndexed(t)
	r.Clear()
	if r.Count() != 0 || r.Digest() != empty.Digest() {
		t.Fatal("Clear should reset the index")
	}
}
