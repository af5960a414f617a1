package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/tracestore"
)

const maxLineBytes = 4 << 20

// Input is one request line.
type Input struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	FormatHint string `json:"format_hint"`
}

// Validate checks the fields the workflow needs.
func (in Input) Validate() error {
	if strings.TrimSpace(in.Question) == "" {
		return fmt.Errorf("%w: question is required", apperr.ErrInvalidInput)
	}
	return nil
}

// Request converts the line into a workflow request.
func (in Input) Request() analyst.Request {
	return analyst.Request{Question: in.Question, FormatHint: in.FormatHint}
}

// Output is one response line. SQL is empty when no query was generated.
type Output struct {
	ID          string   `json:"id"`
	FinalAnswer any      `json:"final_answer"`
	SQL         string   `json:"sql"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Citations   []string `json:"citations"`
}

// OutputFromState assembles the response for a terminal state.
func OutputFromState(id string, st analyst.State) Output {
	citations := st.Citations
	if citations == nil {
		citations = []string{}
	}
	return Output{
		ID:          id,
		FinalAnswer: st.FinalAnswer,
		SQL:         st.QueryText(),
		Confidence:  st.Confidence,
		Explanation: st.Explanation,
		Citations:   citations,
	}
}

// OutputFromRecord assembles the response for a cached run. The answer is
// coerced again because stored numbers come back as floats.
func OutputFromRecord(id, formatHint string, rec *tracestore.Record) Output {
	citations := rec.Citations
	if citations == nil {
		citations = []string{}
	}
	return Output{
		ID:          id,
		FinalAnswer: analyst.CoerceAnswer(rec.FinalAnswer, formatHint),
		SQL:         rec.Query,
		Confidence:  rec.Confidence,
		Explanation: rec.Explanation,
		Citations:   citations,
	}
}

// FailedOutput is the record written for a line that could not be answered.
func FailedOutput(id, explanation string) Output {
	return Output{
		ID:          id,
		FinalAnswer: nil,
		Confidence:  0,
		Explanation: explanation,
		Citations:   []string{},
	}
}

// Line is one decoded input line. Err is set when the line is malformed; ID
// is then whatever could be recovered.
type Line struct {
	Number int
	Input  Input
	Err    error
}

// ID returns the record id, or line-<n> when the line carries none.
func (l Line) ID() string {
	if id := strings.TrimSpace(l.Input.ID); id != "" {
		return id
	}
	return fmt.Sprintf("line-%d", l.Number)
}

var idPattern = regexp.MustCompile(`"id"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// ReadLines decodes every non-blank line of r. Malformed and oversized lines
// are returned with Err set rather than aborting the read.
func ReadLines(r io.Reader) ([]Line, error) {
	return readLines(r, maxLineBytes)
}

func readLines(r io.Reader, limit int) ([]Line, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var lines []Line
	for number := 1; ; number++ {
		raw, oversized, err := readLine(br, limit)
		if err != nil && !errors.Is(err, io.EOF) {
			return lines, fmt.Errorf("read input: %w", err)
		}
		switch text := strings.TrimSpace(string(raw)); {
		case oversized:
			lines = append(lines, oversizedLine(number, text, limit))
		case text != "":
			lines = append(lines, decodeLine(number, text))
		}
		if err != nil {
			return lines, nil
		}
	}
}

// readLine returns the next line without its terminator. Past limit bytes the
// rest of the line is consumed and discarded; the kept prefix is returned with
// oversized set.
func readLine(br *bufio.Reader, limit int) (line []byte, oversized bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		chunk = bytes.TrimSuffix(chunk, []byte("\n"))
		if !oversized {
			if room := limit - len(line); len(chunk) > room {
				line = append(line, chunk[:room]...)
				oversized = true
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

func oversizedLine(number int, prefix string, limit int) Line {
	line := Line{Number: number}
	line.Input.ID = recoverID(prefix)
	line.Err = fmt.Errorf("%w: record on line %d exceeds %d bytes", apperr.ErrInvalidInput, number, limit)
	return line
}

func recoverID(raw string) string {
	m := idPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	var id string
	if json.Unmarshal([]byte(`"`+m[1]+`"`), &id) != nil {
		return ""
	}
	return id
}

func decodeLine(number int, raw string) Line {
	line := Line{Number: number}
	if err := json.Unmarshal([]byte(raw), &line.Input); err != nil {
		line.Input = Input{ID: recoverID(raw)}
		line.Err = fmt.Errorf("%w: malformed record on line %d: %v", apperr.ErrInvalidInput, number, err)
		return line
	}
	if err := line.Input.Validate(); err != nil {
		line.Err = fmt.Errorf("line %d: %w", number, err)
	}
	return line
}

// Encoder writes one JSON object per line.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder creates an encoder on w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes out followed by a newline.
func (e *Encoder) Encode(out Output) error {
	if out.Citations == nil {
		out.Citations = []string{}
	}
	return e.enc.Encode(out)
}
