package prompt

import (
	"errors"
	"strings"
	"testing"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

func TestDefaultsRender(t *testing.T) {
	m := Defaults()

	if got := strings.Join(m.List(), ","); got != "classify,generate_sql,plan,synthesize" {
		t.Fatalf("unexpected templates %s", got)
	}

	out, err := m.Render(GenerateSQL, map[string]any{
		"schema":   "Table: Orders\n  - OrderID (INTEGER)\n",
		"question": "How many orders?",
		"plan":     "1. count orders",
	})
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(out, "Table: Orders") || !strings.HasSuffix(out, "SQL:") {
		t.Fatalf("unexpected render %q", out)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	m := Defaults()
	if _, err := m.Render(Classify, map[string]any{}); err == nil {
		t.Fatal("expected error for missing variable")
	}
}

func TestRegisterDuplicateAndOverride(t *testing.T) {
	m := NewManager()
	if err := m.RegisterString("a", "x"); err != nil {
		t.Fatalf("RegisterString returned error: %v", err)
	}
	if err := m.RegisterString("a", "y"); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := m.Override("a", "{{.v}}!"); err != nil {
		t.Fatalf("Override returned error: %v", err)
	}
	out, err := m.Render("a", map[string]any{"v": "ok"})
	if err != nil || out != "ok!" {
		t.Fatalf("unexpected render %q %v", out, err)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := NewManager().Render("missing", nil)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := NewTemplate(" ", "x"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
}
