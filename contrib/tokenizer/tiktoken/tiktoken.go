package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when the model name is unknown to tiktoken.
const DefaultEncoding = "cl100k_base"

type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer resolves the encoding for a model name, then for an
// encoding name, then falls back to DefaultEncoding.
func NewTiktokenTokenizer(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			enc, err = tiktoken.GetEncoding(DefaultEncoding)
			if err != nil {
				return nil, err
			}
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.Encode(text))
}

// Truncate returns the longest prefix of text that fits in maxTokens.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	ids := t.Encode(text)
	if len(ids) <= maxTokens {
		return text
	}
	return t.enc.Decode(ids[:maxTokens])
}
