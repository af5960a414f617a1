package analyst

import "context"

// Classifier labels a question. Any label outside rag|sql|hybrid is treated as hybrid.
type Classifier interface {
	Classify(ctx context.Context, question string) (string, error)
}

// Retriever returns the k passages most relevant to a question, best first.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]Passage, error)
}

// Planner produces a natural-language execution plan.
type Planner interface {
	Plan(ctx context.Context, question string, docs []Passage) (string, error)
}

// QueryGenerator produces a structured query for the tabular store.
type QueryGenerator interface {
	Generate(ctx context.Context, question, schema, plan string) (string, error)
}

// QueryExecutor runs a query. Implementations may report failures either in
// QueryResult.Error or as a returned error; the workflow treats both alike.
type QueryExecutor interface {
	Execute(ctx context.Context, query string) (*QueryResult, error)
}

// SynthesisInput is everything the synthesizer sees.
type SynthesisInput struct {
	Question    string
	Query       string
	QueryResult *QueryResult
	Docs        []Passage
	FormatHint  string
}

// Synthesis is the raw synthesizer output before post-processing. Citations
// may be a []string, a []any of strings, or one comma-delimited string.
type Synthesis struct {
	FinalAnswer any
	Explanation string
	Citations   any
}

// Synthesizer composes the final answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (*Synthesis, error)
}

// Collaborators groups the external components the workflow calls.
type Collaborators struct {
	Classifier     Classifier
	Retriever      Retriever
	Planner        Planner
	QueryGenerator QueryGenerator
	Executor       QueryExecutor
	Synthesizer    Synthesizer
}

func (c Collaborators) missing() []string {
	var out []string
	if c.Classifier == nil {
		out = append(out, "classifier")
	}
	if c.Retriever == nil {
		out = append(out, "retriever")
	}
	if c.Planner == nil {
		out = append(out, "planner")
	}
	if c.QueryGenerator == nil {
		out = append(out, "query generator")
	}
	if c.Executor == nil {
		out = append(out, "executor")
	}
	if c.Synthesizer == nil {
		out = append(out, "synthesizer")
	}
	return out
}
