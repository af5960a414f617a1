// Package llm implements the analyst collaborators on top of an
// agent.LLMClient.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/hybrid-analyst/agent"
	"github.com/sweetpotato0/hybrid-analyst/analyst"
	"github.com/sweetpotato0/hybrid-analyst/message"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
	"github.com/sweetpotato0/hybrid-analyst/prompt"
	"github.com/sweetpotato0/hybrid-analyst/rag/tokenizer"
)

// Config controls prompting and context budgeting.
type Config struct {
	Temperature   float64
	MaxTokens     int64
	ContextBudget int // tokens allowed for serialized documents and results
	MaxResultRows int
	Tokenizer     tokenizer.Tokenizer
	Prompts       *prompt.Manager
	Logger        *slog.Logger
}

// Option customises the collaborators.
type Option func(*Config)

// WithTemperature sets the sampling temperature for every call.
func WithTemperature(t float64) Option {
	return func(cfg *Config) {
		if t >= 0 {
			cfg.Temperature = t
		}
	}
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int64) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxTokens = n
		}
	}
}

// WithContextBudget bounds the serialized context handed to the model.
func WithContextBudget(tokens int) Option {
	return func(cfg *Config) {
		if tokens > 0 {
			cfg.ContextBudget = tokens
		}
	}
}

// WithMaxResultRows bounds how many result rows the synthesizer sees.
func WithMaxResultRows(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxResultRows = n
		}
	}
}

// WithTokenizer overrides the token counter used for budgeting.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(cfg *Config) {
		if t != nil {
			cfg.Tokenizer = t
		}
	}
}

// WithPrompts overrides the prompt templates.
func WithPrompts(m *prompt.Manager) Option {
	return func(cfg *Config) {
		if m != nil {
			cfg.Prompts = m
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

func applyOptions(opts []Option) *Config {
	cfg := &Config{
		MaxTokens:     1024,
		ContextBudget: 3000,
		MaxResultRows: 50,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = tokenizer.NewSimpleTokenizer()
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompt.Defaults()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.WithComponent("llm")
	}
	return cfg
}

// base carries what every collaborator needs.
type base struct {
	client agent.LLMClient
	cfg    *Config
}

func newBase(client agent.LLMClient, opts []Option) base {
	return base{client: client, cfg: applyOptions(opts)}
}

func (b base) complete(ctx context.Context, system, name string, vars map[string]any, json bool) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("llm client is not configured")
	}
	user, err := b.cfg.Prompts.Render(name, vars)
	if err != nil {
		return "", err
	}
	resp, err := b.client.Generate(ctx, &agent.GenerateRequest{
		Messages:    []*message.Message{message.System(system), message.User(user)},
		Temperature: agent.Temperature(b.cfg.Temperature),
		MaxTokens:   b.cfg.MaxTokens,
		JSON:        json,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%s: empty model reply", name)
	}
	b.cfg.Logger.Debug("model replied", "prompt", name, "reply_tokens", b.cfg.Tokenizer.CountTokens(text))
	return text, nil
}

// Collaborators returns model-backed implementations of the four
// generative collaborators in an analyst.Collaborators with the given
// retriever and executor.
func Collaborators(client agent.LLMClient, retriever analyst.Retriever, executor analyst.QueryExecutor, opts ...Option) analyst.Collaborators {
	return analyst.Collaborators{
		Classifier:     NewClassifier(client, opts...),
		Retriever:      retriever,
		Planner:        NewPlanner(client, opts...),
		QueryGenerator: NewQueryGenerator(client, opts...),
		Executor:       executor,
		Synthesizer:    NewSynthesizer(client, opts...),
	}
}
