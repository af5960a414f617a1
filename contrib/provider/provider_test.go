package provider

import (
	"context"
	"errors"
	"testing"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

func TestNewSelectsProvider(t *testing.T) {
	for _, name := range []string{"openai", "", "Claude", "anthropic"} {
		client, closeFn, err := New(context.Background(), Config{Name: name, APIKey: "test"})
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", name, err)
		}
		if client == nil || closeFn == nil {
			t.Fatalf("New(%q) returned nil client or close func", name)
		}
		if err := closeFn(); err != nil {
			t.Fatalf("close returned error: %v", err)
		}
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, closeFn, err := New(context.Background(), Config{Name: "cohere"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if closeFn == nil {
		t.Fatal("close func should never be nil")
	}
}
