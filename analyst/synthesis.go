package analyst

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Supported format hints for answer coercion.
const (
	FormatInt   = "int"
	FormatFloat = "float"
)

const (
	fallbackAnswer       = "Error generating answer"
	defaultExplanation   = "Generated answer"
	repairPenalty        = 0.2
	missingSourcePenalty = 0.2
)

// Final is a synthesizer output after coercion, citation normalisation and
// confidence scoring.
type Final struct {
	Answer      any
	Explanation string
	Citations   []string
	Confidence  float64
}

// Finalize post-processes a raw synthesis.
func Finalize(raw Synthesis, formatHint string, repairCount int) Final {
	explanation := raw.Explanation
	if strings.TrimSpace(explanation) == "" {
		explanation = defaultExplanation
	}
	citations := NormalizeCitations(raw.Citations)
	return Final{
		Answer:      CoerceAnswer(raw.FinalAnswer, formatHint),
		Explanation: explanation,
		Citations:   citations,
		Confidence:  ScoreConfidence(repairCount, len(citations) > 0),
	}
}

// synthesisFallback builds the answer used when the synthesizer fails: the
// first value of the query result if there is one.
func synthesisFallback(result *QueryResult) func(error) *Synthesis {
	return func(err error) *Synthesis {
		var answer any = fallbackAnswer
		if !result.Failed() {
			if v, ok := result.FirstValue(); ok {
				answer = v
			}
		}
		return &Synthesis{
			FinalAnswer: answer,
			Explanation: fmt.Sprintf("Synthesis failed: %v", err),
			Citations:   []string{},
		}
	}
}

// CoerceAnswer converts the answer to the requested numeric type. Values that
// cannot be converted, including ints outside the int64 range, are returned
// unchanged, as are answers with any other format hint.
func CoerceAnswer(answer any, formatHint string) any {
	switch strings.ToLower(strings.TrimSpace(formatHint)) {
	case FormatInt:
		f, ok := toFloat(answer)
		if !ok || f < math.MinInt64 || f >= math.MaxInt64 {
			return answer
		}
		return int(f)
	case FormatFloat:
		f, ok := toFloat(answer)
		if !ok {
			return answer
		}
		return f
	default:
		return answer
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case []byte:
		return toFloat(string(x))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NormalizeCitations accepts a list or a comma-delimited string and returns
// the trimmed, non-empty entries. It never returns nil.
func NormalizeCitations(raw any) []string {
	out := []string{}
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := raw.(type) {
	case nil:
	case string:
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	case []string:
		for _, s := range v {
			add(s)
		}
	case []any:
		for _, item := range v {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				add(s)
				continue
			}
			add(fmt.Sprint(item))
		}
	default:
		add(fmt.Sprint(v))
	}
	return out
}

// ScoreConfidence starts at 1, loses 0.2 per repair and 0.2 when no source is
// cited, floors at 0 and rounds to two decimals.
func ScoreConfidence(repairCount int, cited bool) float64 {
	score := 1.0 - repairPenalty*float64(repairCount)
	if !cited {
		score -= missingSourcePenalty
	}
	if score < 0 {
		score = 0
	}
	return math.Round(score*100) / 100
}
