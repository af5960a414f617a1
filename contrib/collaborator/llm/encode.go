package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	"github.com/sweetpotato0/hybrid-analyst/rag/tokenizer"
)

// decodeJSON unmarshals the model output into T after stripping fences. Output
// that is not valid JSON is passed through jsonrepair once.
func decodeJSON[T any](raw string) (*T, error) {
	clean := sanitizeJSON(raw)
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err == nil {
		return &out, nil
	}
	repaired, err := jsonrepair.JSONRepair(clean)
	if err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	// drop prose around the object
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start > 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return trimmed
}

var sqlFence = regexp.MustCompile("(?s)```(?:sql|SQL|sqlite)?\\s*(.*?)```")

// extractSQL strips code fences, a leading "SQL:" label and trailing prose
// after the statement terminator.
func extractSQL(raw string) string {
	text := strings.TrimSpace(raw)
	if m := sqlFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)
	for _, label := range []string{"SQL:", "sql:", "Query:"} {
		text = strings.TrimSpace(strings.TrimPrefix(text, label))
	}
	if idx := statementEnd(text); idx >= 0 {
		text = text[:idx+1]
	}
	return strings.TrimSpace(text)
}

// statementEnd returns the index of the first ';' outside quoted literals and
// identifiers, or -1. A doubled quote inside a literal toggles twice and so
// stays inside it.
func statementEnd(sql string) int {
	var quote byte
	for i := 0; i < len(sql); i++ {
		switch c := sql[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			return i
		}
	}
	return -1
}

// formatDocs renders passages as "[id] (source)\ncontent" blocks that fit the
// token budget. Later passages are dropped before earlier ones are cut.
func formatDocs(docs []analyst.Passage, tok tokenizer.Tokenizer, budget int) string {
	if len(docs) == 0 {
		return "(none)"
	}
	var b strings.Builder
	used := 0
	for _, d := range docs {
		block := fmt.Sprintf("[%s] (%s)\n%s\n\n", d.ID, d.Source, strings.TrimSpace(d.Content))
		cost := tok.CountTokens(block)
		if budget > 0 && used+cost > budget {
			if remaining := budget - used; remaining > 0 && b.Len() == 0 {
				b.WriteString(tok.Truncate(block, remaining))
			}
			break
		}
		b.WriteString(block)
		used += cost
	}
	return strings.TrimSpace(b.String())
}

// formatResult renders a query result as a pipe table limited to maxRows rows
// and the token budget.
func formatResult(res *analyst.QueryResult, tok tokenizer.Tokenizer, maxRows, budget int) string {
	switch {
	case res == nil:
		return "(no query executed)"
	case res.Failed():
		return "error: " + res.Error
	case len(res.Rows) == 0:
		return "columns: " + strings.Join(res.Columns, " | ") + "\n(0 rows)"
	}

	var b strings.Builder
	b.WriteString(strings.Join(res.Columns, " | "))
	b.WriteString("\n")
	rows := res.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	if len(rows) < len(res.Rows) {
		fmt.Fprintf(&b, "(%d more rows)\n", len(res.Rows)-len(rows))
	}
	out := strings.TrimSpace(b.String())
	if budget > 0 && tok.CountTokens(out) > budget {
		out = tok.Truncate(out, budget) + "\n(truncated)"
	}
	return out
}
