package tokenizer

import (
	"unicode"
	"unicode/utf8"
)

// Tokenizer counts and truncates text by tokens.
type Tokenizer interface {
	CountTokens(text string) int
	// Truncate returns the longest prefix of text holding at most maxTokens tokens.
	Truncate(text string, maxTokens int) string
}

var _ Tokenizer = (*SimpleTokenizer)(nil)

// SimpleTokenizer approximates model tokenization without any vocabulary
// file. It is the offline fallback when no BPE encoding is available.
type SimpleTokenizer struct{}

// NewSimpleTokenizer creates a tokenizer.
func NewSimpleTokenizer() Tokenizer {
	return SimpleTokenizer{}
}

// ------------------------------------------------------------------
// Tokenization rules:
// - English letters → continuous word
// - Numbers → continuous number
// - Chinese characters → single rune
// - Punctuation → standalone token
// ------------------------------------------------------------------

// spans calls fn with the end byte offset of every token, stopping when fn
// returns false.
func spans(s string, fn func(end int) bool) {
	inWord := false
	for i, r := range s {
		switch {
		case unicode.IsSpace(r):
			if inWord && !fn(i) {
				return
			}
			inWord = false
		case unicode.Is(unicode.Han, r) || !(unicode.IsLetter(r) || unicode.IsDigit(r)):
			if inWord && !fn(i) {
				return
			}
			inWord = false
			if !fn(i + utf8.RuneLen(r)) {
				return
			}
		default:
			inWord = true
		}
	}
	if inWord {
		fn(len(s))
	}
}

func (SimpleTokenizer) CountTokens(text string) int {
	n := 0
	spans(text, func(int) bool {
		n++
		return true
	})
	return n
}

func (SimpleTokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	n, cut := 0, len(text)
	spans(text, func(end int) bool {
		n++
		if n == maxTokens {
			cut = end
			return false
		}
		return true
	})
	return text[:cut]
}
