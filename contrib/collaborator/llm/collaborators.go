package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/sweetpotato0/hybrid-analyst/agent"
	"github.com/sweetpotato0/hybrid-analyst/analyst"
	"github.com/sweetpotato0/hybrid-analyst/prompt"
)

// Classifier asks the model for a route label.
type Classifier struct{ base }

var _ analyst.Classifier = (*Classifier)(nil)

// NewClassifier creates a classifier.
func NewClassifier(client agent.LLMClient, opts ...Option) *Classifier {
	return &Classifier{newBase(client, opts)}
}

// Classify returns the first recognised label in the reply, or the reply's
// first word when none is recognised so the workflow can apply its default.
func (c *Classifier) Classify(ctx context.Context, question string) (string, error) {
	reply, err := c.complete(ctx, prompt.ClassifySystem, prompt.Classify, map[string]any{
		"question": question,
	}, false)
	if err != nil {
		return "", err
	}
	words := strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := analyst.ParseClassification(w); ok {
			return w, nil
		}
	}
	if len(words) == 0 {
		return "", fmt.Errorf("classifier reply has no label: %q", reply)
	}
	return words[0], nil
}

// Planner asks the model for an execution plan.
type Planner struct{ base }

var _ analyst.Planner = (*Planner)(nil)

// NewPlanner creates a planner.
func NewPlanner(client agent.LLMClient, opts ...Option) *Planner {
	return &Planner{newBase(client, opts)}
}

// Plan returns the model's plan for the question given the passages.
func (p *Planner) Plan(ctx context.Context, question string, docs []analyst.Passage) (string, error) {
	return p.complete(ctx, prompt.PlanSystem, prompt.Plan, map[string]any{
		"question": question,
		"docs":     formatDocs(docs, p.cfg.Tokenizer, p.cfg.ContextBudget),
	}, false)
}

// QueryGenerator asks the model for SQL.
type QueryGenerator struct{ base }

var _ analyst.QueryGenerator = (*QueryGenerator)(nil)

// NewQueryGenerator creates a query generator.
func NewQueryGenerator(client agent.LLMClient, opts ...Option) *QueryGenerator {
	return &QueryGenerator{newBase(client, opts)}
}

// Generate returns one SQL statement with fences and labels removed.
func (g *QueryGenerator) Generate(ctx context.Context, question, schema, plan string) (string, error) {
	reply, err := g.complete(ctx, prompt.GenerateSQLSystem, prompt.GenerateSQL, map[string]any{
		"question": question,
		"schema":   schema,
		"plan":     plan,
	}, false)
	if err != nil {
		return "", err
	}
	query := extractSQL(reply)
	if query == "" {
		return "", fmt.Errorf("no SQL in reply: %q", reply)
	}
	return query, nil
}

// Synthesizer asks the model for the final JSON answer.
type Synthesizer struct{ base }

var _ analyst.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(client agent.LLMClient, opts ...Option) *Synthesizer {
	return &Synthesizer{newBase(client, opts)}
}

type synthesisReply struct {
	FinalAnswer any    `json:"final_answer"`
	Explanation string `json:"explanation"`
	Citations   any    `json:"citations"`
}

// Synthesize returns the parsed reply. Post-processing is left to the workflow.
func (s *Synthesizer) Synthesize(ctx context.Context, in analyst.SynthesisInput) (*analyst.Synthesis, error) {
	budget := s.cfg.ContextBudget / 2
	query := in.Query
	if query == "" {
		query = "(none)"
	}
	formatHint := in.FormatHint
	if formatHint == "" {
		formatHint = "str"
	}

	reply, err := s.complete(ctx, prompt.SynthesizeSystem, prompt.Synthesize, map[string]any{
		"question":    in.Question,
		"format_hint": formatHint,
		"query":       query,
		"result":      formatResult(in.QueryResult, s.cfg.Tokenizer, s.cfg.MaxResultRows, budget),
		"docs":        formatDocs(in.Docs, s.cfg.Tokenizer, budget),
	}, true)
	if err != nil {
		return nil, err
	}

	parsed, err := decodeJSON[synthesisReply](reply)
	if err != nil {
		return nil, err
	}
	return &analyst.Synthesis{
		FinalAnswer: parsed.FinalAnswer,
		Explanation: parsed.Explanation,
		Citations:   parsed.Citations,
	}, nil
}
