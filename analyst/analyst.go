// Package analyst answers natural-language questions over a document corpus
// and a relational store. A router picks the route, an optional query loop
// generates, executes and repairs SQL, and a synthesizer composes the answer.
package analyst

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/graph"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
	"github.com/sweetpotato0/hybrid-analyst/pkg/metrics"
)

// Analyst runs the answering workflow. It is safe for concurrent use; each
// Answer call threads its own state through the shared graph.
type Analyst struct {
	cfg    *Config
	collab Collaborators
	logger *slog.Logger
	graph  *graph.Graph[State, Update]
}

// New validates the collaborators and builds the workflow graph.
func New(collab Collaborators, opts ...Option) (*Analyst, error) {
	if missing := collab.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing collaborators: %s", apperr.ErrInvalidInput, strings.Join(missing, ", "))
	}

	cfg := applyOptions(opts)
	logger := cfg.logger
	if logger == nil {
		logger = logging.WithComponent("analyst")
	}

	a := &Analyst{
		cfg:    cfg,
		collab: collab,
		logger: logger.With("workflow", cfg.Name),
	}

	g, err := a.buildGraph()
	if err != nil {
		return nil, err
	}
	a.graph = g
	return a, nil
}

func (a *Analyst) buildGraph() (*graph.Graph[State, Update], error) {
	observer := a.cfg.observer
	if observer == nil {
		observer = stepMetrics{}
	}

	return graph.NewBuilder[State, Update](merge).
		AddNode(StepRouter, a.step(StepRouter, a.routeNode)).
		AddNode(StepRetriever, a.step(StepRetriever, a.retrieveNode)).
		AddNode(StepPlanner, a.step(StepPlanner, a.planNode)).
		AddNode(StepSQLGenerator, a.step(StepSQLGenerator, a.generateNode)).
		AddNode(StepExecutor, a.step(StepExecutor, a.executeNode)).
		AddNode(StepRepair, a.step(StepRepair, a.repairNode)).
		AddNode(StepSynthesizer, a.step(StepSynthesizer, a.synthesizeNode)).
		AddBranch(StepRouter, decideRoute, map[string]string{
			string(ClassRAG):    StepRetriever,
			string(ClassSQL):    StepSQLGenerator,
			string(ClassHybrid): StepRetriever,
		}).
		AddEdge(StepRetriever, StepPlanner).
		AddBranch(StepPlanner, afterPlanner, map[string]string{
			StepSQLGenerator: StepSQLGenerator,
			StepSynthesizer:  StepSynthesizer,
		}).
		AddEdge(StepSQLGenerator, StepExecutor).
		AddBranch(StepExecutor, checkExecution, map[string]string{
			StepSynthesizer: StepSynthesizer,
			StepRepair:      StepRepair,
		}).
		AddBranch(StepRepair, a.afterRepair, map[string]string{
			StepSQLGenerator: StepSQLGenerator,
			StepSynthesizer:  StepSynthesizer,
		}).
		BoundLoop(StepSQLGenerator, a.cfg.RepairLimit).
		BoundLoop(StepExecutor, a.cfg.RepairLimit).
		BoundLoop(StepRepair, a.cfg.RepairLimit).
		SetStart(StepRouter).
		SetEnd(StepSynthesizer).
		SetObserver(observer).
		Build()
}

// step records the node name in the trail of every update it returns.
func (a *Analyst) step(name string, fn graph.NodeFunc[State, Update]) graph.NodeFunc[State, Update] {
	return func(ctx context.Context, st State) (Update, error) {
		u, err := fn(ctx, st)
		if err != nil {
			return u, err
		}
		u.Step = name
		return u, nil
	}
}

// Answer runs one question through the workflow and returns the final state.
// Collaborator failures are absorbed by their fallback policies; an error is
// returned only for retrieval failures, cancellation, or a broken workflow.
func (a *Analyst) Answer(ctx context.Context, req Request) (State, error) {
	if strings.TrimSpace(req.Question) == "" {
		return State{}, fmt.Errorf("%w: question is required", apperr.ErrInvalidInput)
	}

	st := NewState(ulid.Make().String(), req)
	started := time.Now()
	a.logger.Info("answer started", "run_id", st.RunID)

	final, err := a.graph.Execute(ctx, st)
	if err != nil {
		a.logger.Error("answer failed", "run_id", st.RunID, "error", err, "trail", final.Trail)
		return final, err
	}
	a.logger.Info("answer finished",
		"run_id", st.RunID,
		"classification", final.Classification,
		"repair_count", final.RepairCount,
		"confidence", final.Confidence,
		"elapsed", time.Since(started),
	)
	return final, nil
}

// Successors exposes the static transition table of the workflow.
func (a *Analyst) Successors(step string) ([]string, error) {
	return a.graph.Successors(step)
}

// Steps lists the workflow steps in registration order.
func (a *Analyst) Steps() []string {
	return a.graph.Nodes()
}

// Config returns a copy of the effective configuration.
func (a *Analyst) Config() Config {
	return *a.cfg
}

type stepMetrics struct{}

func (stepMetrics) OnNode(_ context.Context, name string, elapsed time.Duration, err error) {
	metrics.ObserveStep(name, elapsed, err)
}
