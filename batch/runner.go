// Package batch answers JSONL request streams with bounded concurrency. Each
// record is isolated: a failing or panicking record produces an error output
// line and never affects its neighbours.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
	"github.com/sweetpotato0/hybrid-analyst/pkg/metrics"
	"github.com/sweetpotato0/hybrid-analyst/tracestore"
)

// Answerer runs one request through the workflow.
type Answerer interface {
	Answer(ctx context.Context, req analyst.Request) (analyst.State, error)
}

// Record outcomes reported to metrics and in the Summary.
const (
	ResultOK     = "ok"
	ResultCached = "cached"
	ResultError  = "error"
)

// Summary counts record outcomes for one Run.
type Summary struct {
	Total    int
	Answered int
	Cached   int
	Failed   int
}

// Runner answers batches of records.
type Runner struct {
	answerer    Answerer
	store       tracestore.Store
	digest      string
	cache       bool
	concurrency int
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds how many records are answered at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithTraceStore persists every terminal state. digest identifies the corpus
// the answers were produced against.
func WithTraceStore(store tracestore.Store, digest string) Option {
	return func(r *Runner) {
		r.store = store
		r.digest = digest
	}
}

// WithCache answers a repeated request from the trace store instead of
// re-running the workflow. It has no effect without a trace store.
func WithCache(enabled bool) Option {
	return func(r *Runner) {
		r.cache = enabled
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a runner around the answerer.
func New(answerer Answerer, opts ...Option) *Runner {
	r := &Runner{
		answerer:    answerer,
		concurrency: 4,
		logger:      logging.WithComponent("batch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run reads every record from in, answers them concurrently, and writes the
// outputs to out in input order. Only read, write and cancellation errors are
// returned; record failures become output lines. On cancellation the records
// that finished are still written, records that never ran are omitted, and
// the context error is returned.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (Summary, error) {
	lines, err := ReadLines(in)
	if err != nil {
		return Summary{}, err
	}

	outputs := make([]Output, len(lines))
	results := make([]string, len(lines))
	done := make([]bool, len(lines))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outputs[i], results[i] = r.process(ctx, line)
			// A failure caused by the cancellation itself is not a result.
			done[i] = results[i] != ResultError || ctx.Err() == nil
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{Total: len(lines)}
	for i, res := range results {
		if !done[i] {
			continue
		}
		switch res {
		case ResultOK:
			summary.Answered++
		case ResultCached:
			summary.Cached++
		default:
			summary.Failed++
		}
	}

	enc := NewEncoder(out)
	for i, o := range outputs {
		if !done[i] {
			continue
		}
		if err := enc.Encode(o); err != nil {
			return summary, fmt.Errorf("write output: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		r.logger.Warn("batch cancelled",
			"total", summary.Total,
			"written", summary.Answered+summary.Cached+summary.Failed,
			"error", err,
		)
		return summary, err
	}
	r.logger.Info("batch finished",
		"total", summary.Total,
		"answered", summary.Answered,
		"cached", summary.Cached,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (r *Runner) process(ctx context.Context, line Line) (out Output, result string) {
	id := line.ID()
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: panic while answering %s: %v", apperr.ErrInternal, id, p)
			r.logger.Error("record panicked", "id", id, "error", err)
			metrics.ObserveRecord(ResultError)
			out, result = FailedOutput(id, "Failed to answer: "+err.Error()), ResultError
		}
	}()

	if line.Err != nil {
		r.logger.Warn("skipping malformed record", "id", id, "error", line.Err)
		metrics.ObserveRecord(ResultError)
		return FailedOutput(id, "Invalid input record: "+line.Err.Error()), ResultError
	}
	line.Input.ID = id
	return r.resolve(ctx, line.Input)
}

// Resolve answers one record, consulting and filling the trace store when one
// is configured.
func (r *Runner) Resolve(ctx context.Context, in Input) Output {
	out, _ := r.resolve(ctx, in)
	return out
}

func (r *Runner) resolve(ctx context.Context, in Input) (Output, string) {
	var fingerprint string
	if r.store != nil {
		fingerprint = tracestore.Fingerprint(in.Question, in.FormatHint, r.digest)
	}

	if r.cache && r.store != nil {
		rec, err := r.store.FindByFingerprint(ctx, fingerprint)
		switch {
		case err == nil && rec.Degraded:
			r.logger.Info("ignoring degraded trace", "id", in.ID, "run_id", rec.RunID)
		case err == nil:
			r.logger.Info("answered from trace store", "id", in.ID, "run_id", rec.RunID)
			metrics.ObserveRecord(ResultCached)
			return OutputFromRecord(in.ID, in.FormatHint, rec), ResultCached
		case !errors.Is(err, apperr.ErrNotFound):
			r.logger.Warn("trace lookup failed", "id", in.ID, "error", err)
		}
	}

	st, err := r.answerer.Answer(ctx, in.Request())
	if err != nil {
		r.logger.Error("record failed", "id", in.ID, "run_id", st.RunID, "error", err)
		metrics.ObserveRecord(ResultError)
		return FailedOutput(in.ID, "Failed to answer: "+err.Error()), ResultError
	}
	switch {
	case st.Failed():
		r.logger.Error("record finished with unresolved error", "id", in.ID, "run_id", st.RunID, "error", st.ErrorText())
	case st.QueryResult.Failed():
		r.logger.Error("record finished with unresolved error", "id", in.ID, "run_id", st.RunID,
			"error", st.QueryResult.Error, "repairs", st.RepairCount)
	case st.SynthesisFallback:
		r.logger.Warn("record answered by synthesis fallback", "id", in.ID, "run_id", st.RunID)
	}

	if r.store != nil {
		if err := r.store.Save(ctx, tracestore.FromState(st, fingerprint)); err != nil {
			r.logger.Warn("trace save failed", "id", in.ID, "run_id", st.RunID, "error", err)
		}
	}
	metrics.ObserveRecord(ResultOK)
	return OutputFromState(in.ID, st), ResultOK
}
