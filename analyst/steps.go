package analyst

import (
	"context"
	"fmt"
	"strings"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/pkg/metrics"
)

// Workflow step names.
const (
	StepRouter       = "router"
	StepRetriever    = "retriever"
	StepPlanner      = "planner"
	StepSQLGenerator = "sql_generator"
	StepExecutor     = "executor"
	StepRepair       = "repair"
	StepSynthesizer  = "synthesizer"
)

// Fallback policies. Each maps a collaborator failure to the value the step
// proceeds with.

func classifyFallback(error) Classification {
	return ClassHybrid
}

func planFallback(question string) func(error) string {
	return func(error) string {
		return "Answer the question: " + question
	}
}

func (a *Analyst) routeNode(ctx context.Context, st State) (Update, error) {
	logger := a.logger.With("run_id", st.RunID, "step", StepRouter)
	logger.Info("routing question", "question", trimForLog(st.Question, 120))

	outcome := invoke(ctx, a.cfg.StepTimeout, func(ctx context.Context) (Classification, error) {
		raw, err := a.collab.Classifier.Classify(ctx, st.Question)
		if err != nil {
			return "", err
		}
		c, ok := ParseClassification(raw)
		if !ok {
			return "", fmt.Errorf("%w: unrecognised classification %q", apperr.ErrInvalidInput, raw)
		}
		return c, nil
	})
	if err := outcome.Err(); err != nil {
		logger.Warn("router failed, defaulting to hybrid", "error", err)
		metrics.ObserveFallback(StepRouter)
	}
	classification := outcome.OrElse(classifyFallback)
	metrics.ObserveRoute(string(classification))
	logger.Info("question routed", "classification", classification)

	return Update{Classification: Assign(classification)}, nil
}

func (a *Analyst) retrieveNode(ctx context.Context, st State) (Update, error) {
	logger := a.logger.With("run_id", st.RunID, "step", StepRetriever)

	outcome := invoke(ctx, a.cfg.StepTimeout, func(ctx context.Context) ([]Passage, error) {
		return a.collab.Retriever.Retrieve(ctx, st.Question, a.cfg.TopK)
	})
	docs, ok := outcome.Value()
	if !ok {
		logger.Error("retrieval failed", "error", outcome.Err())
		return Update{}, fmt.Errorf("retrieve passages: %w", outcome.Err())
	}
	logger.Info("passages retrieved", "count", len(docs))
	return Update{RetrievedDocs: Assign(docs)}, nil
}

func (a *Analyst) planNode(ctx context.Context, st State) (Update, error) {
	logger := a.logger.With("run_id", st.RunID, "step", StepPlanner)

	outcome := invoke(ctx, a.cfg.StepTimeout, func(ctx context.Context) (string, error) {
		plan, err := a.collab.Planner.Plan(ctx, st.Question, st.RetrievedDocs)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(plan) == "" {
			return "", fmt.Errorf("planner returned an empty plan")
		}
		return plan, nil
	})
	if err := outcome.Err(); err != nil {
		logger.Warn("planner failed, using basic plan", "error", err)
		metrics.ObserveFallback(StepPlanner)
	}
	plan := outcome.OrElse(planFallback(st.Question))
	logger.Info("plan ready", "length", len(plan))
	return Update{Plan: Assign(plan)}, nil
}

func (a *Analyst) generateNode(ctx context.Context, st State) (Update, error) {
	logger := a.logger.With("run_id", st.RunID, "step", StepSQLGenerator, "attempt", st.RepairCount+1)

	outcome := invoke(ctx, a.cfg.StepTimeout, func(ctx context.Context) (string, error) {
		query, err := a.collab.QueryGenerator.Generate(ctx, st.Question, a.cfg.Schema, st.Plan)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(query) == "" {
			return "", fmt.Errorf("generator returned an empty query")
		}
		return strings.TrimSpace(query), nil
	})
	query, ok := outcome.Value()
	if !ok {
		msg := fmt.Sprintf("SQL generation failed: %v", outcome.Err())
		logger.Warn("query generation failed", "error", outcome.Err())
		return Update{
			Query: Assign[*string](nil),
			Error: Assign(stringPtr(msg)),
		}, nil
	}
	logger.Info("query generated", "query", trimForLog(query, 200))
	return Update{Query: Assign(stringPtr(query))}, nil
}

// executeNode always produces a QueryResult. A missing query and an executor
// failure end up in the same shape so the repair loop handles both.
func (a *Analyst) executeNode(ctx context.Context, st State) (Update, error) {
	logger := a.logger.With("run_id", st.RunID, "step", StepExecutor)

	result := a.runQuery(ctx, st)
	if result.Failed() {
		logger.Warn("query execution failed", "error", result.Error)
		return Update{
			QueryResult: Assign(result),
			Error:       Assign(stringPtr(result.Error)),
		}, nil
	}
	logger.Info("query executed", "columns", len(result.Columns), "rows", len(result.Rows))
	return Update{
		QueryResult: Assign(result),
		Error:       Assign[*string](nil),
	}, nil
}

func (a *Analyst) runQuery(ctx context.Context, st State) *QueryResult {
	if st.Query == nil || strings.TrimSpace(*st.Query) == "" {
		msg := apperr.ErrNoQuery.Error()
		if st.Error != nil {
			msg = *st.Error
		}
		return &QueryResult{Columns: []string{}, Rows: [][]any{}, Error: msg}
	}

	outcome := invoke(ctx, a.cfg.StepTimeout, func(ctx context.Context) (*QueryResult, error) {
		res, err := a.collab.Executor.Execute(ctx, *st.Query)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("executor returned no result")
		}
		return res, nil
	})
	return outcome.OrElse(func(err error) *QueryResult {
		return &QueryResult{Columns: []string{}, Rows: [][]any{}, Error: err.Error()}
	}).Clone()
}

// repairNode turns a captured failure into another generation attempt: the
// error is appended to the plan and cleared from the state.
func (a *Analyst) repairNode(_ context.Context, st State) (Update, error) {
	attempt := st.RepairCount + 1
	a.logger.Warn("repairing query",
		"run_id", st.RunID,
		"step", StepRepair,
		"attempt", attempt,
		"error", st.ErrorText(),
	)
	metrics.ObserveRepair()

	return Update{
		RepairCount: Assign(attempt),
		Plan:        Assign(st.Plan + repairNote(st.ErrorText())),
		Error:       Assign[*string](nil),
	}, nil
}

func repairNote(errText string) string {
	return fmt.Sprintf("\nPrevious SQL failed with error: %s. Fix the SQL.", errText)
}

func (a *Analyst) synthesizeNode(ctx context.Context, st State) (Update, error) {
	logger := a.logger.With("run_id", st.RunID, "step", StepSynthesizer)

	in := SynthesisInput{
		Question:    st.Question,
		Query:       st.QueryText(),
		QueryResult: st.QueryResult.Clone(),
		Docs:        st.RetrievedDocs,
		FormatHint:  st.FormatHint,
	}
	outcome := invoke(ctx, a.cfg.StepTimeout, func(ctx context.Context) (*Synthesis, error) {
		out, err := a.collab.Synthesizer.Synthesize(ctx, in)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, fmt.Errorf("synthesizer returned no output")
		}
		return out, nil
	})
	if err := outcome.Err(); err != nil {
		logger.Warn("synthesizer failed, using fallback", "error", err)
		metrics.ObserveFallback(StepSynthesizer)
	}
	raw := outcome.OrElse(synthesisFallback(st.QueryResult))

	final := Finalize(*raw, st.FormatHint, st.RepairCount)
	metrics.ObserveConfidence(final.Confidence)
	logger.Info("answer synthesized",
		"confidence", final.Confidence,
		"citations", len(final.Citations),
		"repair_count", st.RepairCount,
	)

	return Update{
		FinalAnswer:       Assign(final.Answer),
		Explanation:       Assign(final.Explanation),
		Citations:         Assign(final.Citations),
		Confidence:        Assign(final.Confidence),
		SynthesisFallback: Assign(!outcome.Ok()),
	}, nil
}

// Branch functions. All are pure functions of the state.

func decideRoute(st State) string {
	return string(st.Classification)
}

func afterPlanner(st State) string {
	if st.Classification.NeedsQuery() {
		return StepSQLGenerator
	}
	return StepSynthesizer
}

func checkExecution(st State) string {
	if st.Failed() {
		return StepRepair
	}
	return StepSynthesizer
}

func (a *Analyst) afterRepair(st State) string {
	if st.RepairCount < a.cfg.RepairLimit {
		return StepSQLGenerator
	}
	return StepSynthesizer
}

func trimForLog(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
