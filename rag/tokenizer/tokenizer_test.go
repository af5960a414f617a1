package tokenizer

import "testing"

func TestCountTokens(t *testing.T) {
	tok := NewSimpleTokenizer()
	cases := map[string]int{
		"":                     0,
		"hello world":          2,
		"AOV = SUM(x) / 2":     8,
		"订单 total":             3,
		"  trailing spaces   ": 2,
	}
	for in, want := range cases {
		if got := tok.CountTokens(in); got != want {
			t.Errorf("CountTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tok := NewSimpleTokenizer()
	if got := tok.Truncate("one two three four", 2); got != "one two" {
		t.Errorf("Truncate = %q", got)
	}
	if got := tok.Truncate("short", 10); got != "short" {
		t.Errorf("Truncate should keep short text, got %q", got)
	}
	if got := tok.Truncate("x", 0); got != "" {
		t.Errorf("Truncate with zero budget = %q", got)
	}
}
