package llm

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/sweetpotato0/hybrid-analyst/agent"
	"github.com/sweetpotato0/hybrid-analyst/analyst"
	"github.com/sweetpotato0/hybrid-analyst/message"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
	"github.com/sweetpotato0/hybrid-analyst/rag/tokenizer"
)

type stubLLM struct {
	reply    string
	err      error
	requests []*agent.GenerateRequest
}

func (s *stubLLM) Generate(_ context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &agent.GenerateResponse{Message: message.NewMessage(message.RoleAssistant, s.reply)}, nil
}

func (s *stubLLM) lastUser(t *testing.T) string {
	t.Helper()
	if len(s.requests) == 0 {
		t.Fatal("no request recorded")
	}
	msgs := s.requests[len(s.requests)-1].Messages
	return msgs[len(msgs)-1].Content
}

func quiet() Option { return WithLogger(logging.Discard()) }

func TestClassifierParsesLabel(t *testing.T) {
	cases := []struct {
		reply string
		want  string
	}{
		{"sql", "sql"},
		{"Hybrid.", "hybrid"},
		{"I think this is a RAG question", "rag"},
		{"**sql**", "sql"},
		{"banana split", "banana"},
	}
	for _, tc := range cases {
		llm := &stubLLM{reply: tc.reply}
		got, err := NewClassifier(llm, quiet()).Classify(context.Background(), "How many orders?")
		if err != nil {
			t.Fatalf("Classify(%q) returned error: %v", tc.reply, err)
		}
		if got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.reply, got, tc.want)
		}
	}
}

func TestClassifierRequest(t *testing.T) {
	llm := &stubLLM{reply: "sql"}
	if _, err := NewClassifier(llm, quiet(), WithTemperature(0.3)).Classify(context.Background(), "How many orders?"); err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	req := llm.requests[0]
	if req.Messages[0].Role != message.RoleSystem || req.JSON {
		t.Fatalf("unexpected request shape: %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.3 {
		t.Fatalf("temperature not forwarded: %v", req.Temperature)
	}
	if !strings.Contains(llm.lastUser(t), "How many orders?") {
		t.Fatalf("question missing from prompt: %q", llm.lastUser(t))
	}
}

func TestClassifierErrors(t *testing.T) {
	boom := errors.New("rate limited")
	if _, err := NewClassifier(&stubLLM{err: boom}, quiet()).Classify(context.Background(), "q"); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if _, err := NewClassifier(&stubLLM{reply: "  "}, quiet()).Classify(context.Background(), "q"); err == nil {
		t.Fatal("expected error for empty reply")
	}
	if _, err := NewClassifier(&stubLLM{reply: "42!"}, quiet()).Classify(context.Background(), "q"); err == nil {
		t.Fatal("expected error for reply without words")
	}
}

func TestPlannerIncludesPassages(t *testing.T) {
	llm := &stubLLM{reply: "1. Filter orders by the summer campaign dates."}
	docs := []analyst.Passage{{ID: "marketing::chunk0", Source: "marketing.md", Content: "Summer campaign runs June 1 to June 30."}}

	plan, err := NewPlanner(llm, quiet()).Plan(context.Background(), "Revenue during summer?", docs)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if !strings.HasPrefix(plan, "1. Filter") {
		t.Fatalf("unexpected plan %q", plan)
	}
	user := llm.lastUser(t)
	if !strings.Contains(user, "[marketing::chunk0] (marketing.md)") || !strings.Contains(user, "June 30") {
		t.Fatalf("passages missing from prompt: %q", user)
	}
}

func TestQueryGeneratorExtractsSQL(t *testing.T) {
	cases := []struct {
		reply string
		want  string
	}{
		{"SELECT 1;", "SELECT 1;"},
		{"```sql\nSELECT COUNT(*) FROM Orders;\n```", "SELECT COUNT(*) FROM Orders;"},
		{"SQL: SELECT name FROM Products; This lists products.", "SELECT name FROM Products;"},
		{"Here you go:\n```\nSELECT 2\n```\nthanks", "SELECT 2"},
		{"SELECT COUNT(*) FROM Products WHERE ProductName = 'Tea; Green'; -- done", "SELECT COUNT(*) FROM Products WHERE ProductName = 'Tea; Green';"},
		{`SELECT "a;b" FROM t WHERE x = 'it''s;' ; trailing`, `SELECT "a;b" FROM t WHERE x = 'it''s;' ;`},
	}
	for _, tc := range cases {
		llm := &stubLLM{reply: tc.reply}
		got, err := NewQueryGenerator(llm, quiet()).Generate(context.Background(), "q", "Table: Orders", "plan")
		if err != nil {
			t.Fatalf("Generate(%q) returned error: %v", tc.reply, err)
		}
		if got != tc.want {
			t.Errorf("Generate(%q) = %q, want %q", tc.reply, got, tc.want)
		}
	}

	llm := &stubLLM{reply: "```sql\n```"}
	if _, err := NewQueryGenerator(llm, quiet()).Generate(context.Background(), "q", "s", "p"); err == nil {
		t.Fatal("expected error for reply without SQL")
	}
}

func TestSynthesizerDecodesReply(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  analyst.Synthesis
	}{
		{
			name:  "plain",
			reply: `{"final_answer": 42, "explanation": "Counted rows.", "citations": ["orders"]}`,
			want:  analyst.Synthesis{FinalAnswer: 42.0, Explanation: "Counted rows.", Citations: []any{"orders"}},
		},
		{
			name:  "fenced",
			reply: "```json\n{\"final_answer\": \"Beverages\", \"explanation\": \"Top category.\", \"citations\": \"orders, products\"}\n```",
			want:  analyst.Synthesis{FinalAnswer: "Beverages", Explanation: "Top category.", Citations: "orders, products"},
		},
		{
			name:  "trailing comma repaired",
			reply: `Sure! {"final_answer": 3.5, "explanation": "Average.", "citations": ["kpi.md",],}`,
			want:  analyst.Synthesis{FinalAnswer: 3.5, Explanation: "Average.", Citations: []any{"kpi.md"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			llm := &stubLLM{reply: tc.reply}
			got, err := NewSynthesizer(llm, quiet()).Synthesize(context.Background(), analyst.SynthesisInput{
				Question:   "q",
				FormatHint: "int",
			})
			if err != nil {
				t.Fatalf("Synthesize returned error: %v", err)
			}
			if !reflect.DeepEqual(*got, tc.want) {
				t.Fatalf("got %#v, want %#v", *got, tc.want)
			}
			if !llm.requests[0].JSON {
				t.Fatal("synthesizer should request JSON output")
			}
		})
	}
}

func TestSynthesizerPrompt(t *testing.T) {
	llm := &stubLLM{reply: `{"final_answer": 1, "explanation": "x", "citations": []}`}
	_, err := NewSynthesizer(llm, quiet()).Synthesize(context.Background(), analyst.SynthesisInput{
		Question:    "How many orders?",
		Query:       "SELECT COUNT(*) FROM Orders",
		QueryResult: &analyst.QueryResult{Columns: []string{"n"}, Rows: [][]any{{830}}},
		FormatHint:  "int",
	})
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	user := llm.lastUser(t)
	for _, want := range []string{"How many orders?", "SELECT COUNT(*) FROM Orders", "n\n830", "int"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q: %q", want, user)
		}
	}
}

func TestSynthesizerRejectsProse(t *testing.T) {
	llm := &stubLLM{reply: "I could not work this out."}
	if _, err := NewSynthesizer(llm, quiet()).Synthesize(context.Background(), analyst.SynthesisInput{Question: "q"}); err == nil {
		t.Fatal("expected decode error for a prose reply")
	}
}

func TestFormatDocsBudget(t *testing.T) {
	tok := tokenizer.NewSimpleTokenizer()
	docs := []analyst.Passage{
		{ID: "a", Source: "a.md", Content: strings.Repeat("alpha ", 40)},
		{ID: "b", Source: "b.md", Content: "beta"},
	}

	if got := formatDocs(nil, tok, 100); got != "(none)" {
		t.Fatalf("expected placeholder, got %q", got)
	}

	full := formatDocs(docs, tok, 0)
	if !strings.Contains(full, "[a] (a.md)") || !strings.Contains(full, "[b] (b.md)\nbeta") {
		t.Fatalf("unbounded render lost passages: %q", full)
	}

	cut := formatDocs(docs, tok, 20)
	if !strings.HasPrefix(cut, "[a]") || strings.Contains(cut, "[b]") {
		t.Fatalf("budget should keep a truncated first passage only: %q", cut)
	}
	if n := tok.CountTokens(cut); n > 20 {
		t.Fatalf("render exceeds budget: %d tokens", n)
	}
}

func TestFormatResult(t *testing.T) {
	tok := tokenizer.NewSimpleTokenizer()
	res := &analyst.QueryResult{
		Columns: []string{"name", "total"},
		Rows:    [][]any{{"Chai", 10}, {"Chang", 20}, {"Tofu", 30}},
	}

	cases := []struct {
		name    string
		res     *analyst.QueryResult
		maxRows int
		want    string
	}{
		{"nil", nil, 10, "(no query executed)"},
		{"failed", &analyst.QueryResult{Error: "no such table: X"}, 10, "error: no such table: X"},
		{"empty", &analyst.QueryResult{Columns: []string{"n"}}, 10, "columns: n\n(0 rows)"},
		{"all rows", res, 10, "name | total\nChai | 10\nChang | 20\nTofu | 30"},
		{"row limit", res, 2, "name | total\nChai | 10\nChang | 20\n(1 more rows)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatResult(tc.res, tok, tc.maxRows, 0); got != tc.want {
				t.Fatalf("formatResult = %q, want %q", got, tc.want)
			}
		})
	}

	if got := formatResult(res, tok, 10, 4); !strings.HasSuffix(got, "(truncated)") {
		t.Fatalf("expected truncation marker, got %q", got)
	}
}
