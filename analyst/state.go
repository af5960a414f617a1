package analyst

import (
	"slices"
	"strings"
)

// Request is the immutable input of one answering run.
type Request struct {
	Question   string `json:"question"`
	FormatHint string `json:"format_hint"`
}

// Classification is the routing label chosen for a question.
type Classification string

const (
	ClassRAG    Classification = "rag"
	ClassSQL    Classification = "sql"
	ClassHybrid Classification = "hybrid"
)

// ParseClassification normalises a raw label. Unknown labels report false.
func ParseClassification(raw string) (Classification, bool) {
	switch c := Classification(strings.ToLower(strings.TrimSpace(raw))); c {
	case ClassRAG, ClassSQL, ClassHybrid:
		return c, true
	default:
		return "", false
	}
}

// NeedsDocuments reports whether the route starts with retrieval.
func (c Classification) NeedsDocuments() bool {
	return c == ClassRAG || c == ClassHybrid
}

// NeedsQuery reports whether the route runs the structured query path.
func (c Classification) NeedsQuery() bool {
	return c == ClassSQL || c == ClassHybrid
}

// Passage is one ranked text passage returned by a Retriever.
type Passage struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// QueryResult is the outcome of running a structured query. A non-empty Error
// marks a failed execution; Columns and Rows are then empty.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Error   string   `json:"error,omitempty"`
}

// Failed reports whether execution failed.
func (r *QueryResult) Failed() bool {
	return r != nil && r.Error != ""
}

// FirstValue returns the first column of the first row, if any.
func (r *QueryResult) FirstValue() (any, bool) {
	if r == nil || len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return nil, false
	}
	return r.Rows[0][0], true
}

// Clone returns a deep copy of the result.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	out := &QueryResult{
		Columns: slices.Clone(r.Columns),
		Error:   r.Error,
	}
	if r.Rows != nil {
		out.Rows = make([][]any, len(r.Rows))
		for i, row := range r.Rows {
			out.Rows[i] = slices.Clone(row)
		}
	}
	return out
}

// State is the record threaded through the workflow. Steps never mutate it;
// they return an Update which Apply folds into a fresh copy.
type State struct {
	RunID             string         `json:"run_id"`
	Question          string         `json:"question"`
	FormatHint        string         `json:"format_hint"`
	Classification    Classification `json:"classification"`
	Plan              string         `json:"plan"`
	RetrievedDocs     []Passage      `json:"retrieved_docs"`
	Query             *string        `json:"query"`
	QueryResult       *QueryResult   `json:"query_result"`
	Error             *string        `json:"error"`
	RepairCount       int            `json:"repair_count"`
	FinalAnswer       any            `json:"final_answer"`
	Explanation       string         `json:"explanation"`
	Citations         []string       `json:"citations"`
	Confidence        float64        `json:"confidence"`
	// SynthesisFallback is set when the synthesizer failed and the answer
	// came from the fallback policy.
	SynthesisFallback bool           `json:"synthesis_fallback"`
	Trail             []string       `json:"trail"`
}

// NewState creates the initial state for a request.
func NewState(runID string, req Request) State {
	return State{
		RunID:      runID,
		Question:   req.Question,
		FormatHint: req.FormatHint,
	}
}

// QueryText returns the current query or "" when none was generated.
func (s State) QueryText() string {
	if s.Query == nil {
		return ""
	}
	return *s.Query
}

// ErrorText returns the current failure or "".
func (s State) ErrorText() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// Failed reports whether a step left an outstanding error.
func (s State) Failed() bool {
	return s.Error != nil
}

// Degraded reports whether the answer is a fallback: synthesis failed, or the
// last executed query still failed when repairs ran out.
func (s State) Degraded() bool {
	return s.SynthesisFallback || s.QueryResult.Failed()
}

// Field is one optional member of an Update. The zero value leaves the state
// field untouched; Assign(v) overwrites it, including with nil.
type Field[T any] struct {
	Set   bool
	Value T
}

// Assign returns a field that overwrites the corresponding state value.
func Assign[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Update is the partial state a step returns.
type Update struct {
	Step              string
	Classification    Field[Classification]
	Plan              Field[string]
	RetrievedDocs     Field[[]Passage]
	Query             Field[*string]
	QueryResult       Field[*QueryResult]
	Error             Field[*string]
	RepairCount       Field[int]
	FinalAnswer       Field[any]
	Explanation       Field[string]
	Citations         Field[[]string]
	Confidence        Field[float64]
	// SynthesisFallback marks a fallback answer.
	SynthesisFallback Field[bool]
}

// Apply returns a copy of s with u merged in. Returned slices and pointers
// are never shared with u.
func (s State) Apply(u Update) State {
	next := s
	if u.Step != "" {
		next.Trail = append(slices.Clone(s.Trail), u.Step)
	}
	if u.Classification.Set {
		next.Classification = u.Classification.Value
	}
	if u.Plan.Set {
		next.Plan = u.Plan.Value
	}
	if u.RetrievedDocs.Set {
		next.RetrievedDocs = slices.Clone(u.RetrievedDocs.Value)
	}
	if u.Query.Set {
		next.Query = cloneString(u.Query.Value)
	}
	if u.QueryResult.Set {
		next.QueryResult = u.QueryResult.Value.Clone()
	}
	if u.Error.Set {
		next.Error = cloneString(u.Error.Value)
	}
	if u.RepairCount.Set {
		next.RepairCount = u.RepairCount.Value
	}
	if u.FinalAnswer.Set {
		next.FinalAnswer = u.FinalAnswer.Value
	}
	if u.Explanation.Set {
		next.Explanation = u.Explanation.Value
	}
	if u.Citations.Set {
		next.Citations = slices.Clone(u.Citations.Value)
	}
	if u.Confidence.Set {
		next.Confidence = u.Confidence.Value
	}
	if u.SynthesisFallback.Set {
		next.SynthesisFallback = u.SynthesisFallback.Value
	}
	return next
}

func merge(s State, u Update) State {
	return s.Apply(u)
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func stringPtr(v string) *string {
	return &v
}
