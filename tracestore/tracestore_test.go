package tracestore

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

func terminalState() analyst.State {
	query := "SELECT COUNT(*) FROM Orders"
	st := analyst.NewState("run-1", analyst.Request{Question: "How many orders?", FormatHint: "int"})
	st.Classification = analyst.ClassSQL
	st.Query = &query
	st.FinalAnswer = 830
	st.Citations = []string{"Orders"}
	st.Confidence = 1
	st.Trail = []string{"router", "sql_generator", "executor", "synthesizer"}
	return st
}

func TestFingerprint(t *testing.T) {
	base := Fingerprint("How many orders?", "int", "digest")
	if len(base) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %q", base)
	}
	if got := Fingerprint("  How   many orders? ", "INT", "digest"); got != base {
		t.Fatal("whitespace and hint case should not change the fingerprint")
	}
	for _, other := range []string{
		Fingerprint("How many orders?", "float", "digest"),
		Fingerprint("How many orders?", "int", "other"),
		Fingerprint("How many customers?", "int", "digest"),
	} {
		if other == base {
			t.Fatal("distinct requests must not share a fingerprint")
		}
	}
}

func TestFromState(t *testing.T) {
	st := terminalState()
	rec := FromState(st, "fp")
	if rec.RunID != "run-1" || rec.Query != "SELECT COUNT(*) FROM Orders" || rec.Classification != "sql" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Error != "" || rec.CreatedAt.IsZero() || rec.Degraded {
		t.Fatalf("unexpected record %+v", rec)
	}
	st.Citations[0] = "mutated"
	if rec.Citations[0] != "Orders" {
		t.Fatal("record must not share slices with the state")
	}

	empty := FromState(analyst.NewState("run-2", analyst.Request{Question: "q"}), "")
	if empty.Citations == nil {
		t.Fatal("citations should never be nil")
	}
}

func TestFromStateMarksDegradedRuns(t *testing.T) {
	failed := terminalState()
	failed.QueryResult = &analyst.QueryResult{Error: "no such table: Order"}
	fallback := terminalState()
	fallback.SynthesisFallback = true

	for name, st := range map[string]analyst.State{"failed query": failed, "synthesis fallback": fallback} {
		if rec := FromState(st, "fp"); !rec.Degraded {
			t.Errorf("%s: expected degraded record", name)
		}
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if err := store.Save(ctx, &Record{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.FindByFingerprint(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first := FromState(terminalState(), "fp")
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	second := first.Clone()
	second.RunID = "run-2"
	second.FinalAnswer = 831
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := store.FindByFingerprint(ctx, "fp")
	if err != nil {
		t.Fatalf("FindByFingerprint returned error: %v", err)
	}
	if got.RunID != "run-2" {
		t.Fatalf("expected the latest run, got %s", got.RunID)
	}
	got.Trail[0] = "mutated"
	again, _ := store.Get(ctx, "run-2")
	if again.Trail[0] != "router" {
		t.Fatal("store must return copies")
	}
	if store.Count() != 2 {
		t.Fatalf("expected 2 records, got %d", store.Count())
	}
	store.Clear()
	if store.Count() != 0 {
		t.Fatal("Clear should empty the store")
	}
}
