// Package provider selects an LLM provider by name.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetpotato0/hybrid-analyst/agent"
	"github.com/sweetpotato0/hybrid-analyst/contrib/provider/claude"
	"github.com/sweetpotato0/hybrid-analyst/contrib/provider/gemini"
	"github.com/sweetpotato0/hybrid-analyst/contrib/provider/openai"
	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

// Provider names.
const (
	OpenAI = "openai"
	Claude = "claude"
	Gemini = "gemini"
)

// Config is the provider-neutral model configuration.
type Config struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// New builds the named provider wrapped with tracing and metrics. The
// returned close function releases provider resources and is never nil.
func New(ctx context.Context, cfg Config) (agent.LLMClient, func() error, error) {
	noop := func() error { return nil }
	name := strings.ToLower(strings.TrimSpace(cfg.Name))

	switch name {
	case OpenAI, "":
		p := openai.New(&openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		return agent.Instrument(OpenAI, p), noop, nil
	case Claude, "anthropic":
		p := claude.New(&claude.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		return agent.Instrument(Claude, p), noop, nil
	case Gemini:
		p, err := gemini.New(ctx, &gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   int(cfg.MaxTokens),
			Temperature: float32(cfg.Temperature),
		})
		if err != nil {
			return nil, noop, err
		}
		return agent.Instrument(Gemini, p), p.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown llm provider %q", apperr.ErrInvalidInput, cfg.Name)
	}
}
