// Package tracestore persists the terminal state of workflow runs and looks
// previous answers up by request fingerprint.
package tracestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
)

// Record is the persisted outcome of one run.
type Record struct {
	RunID          string    `json:"run_id"`
	Fingerprint    string    `json:"fingerprint"`
	Question       string    `json:"question"`
	FormatHint     string    `json:"format_hint"`
	Classification string    `json:"classification"`
	Plan           string    `json:"plan"`
	Query          string    `json:"query"`
	Error          string    `json:"error,omitempty"`
	RepairCount    int       `json:"repair_count"`
	FinalAnswer    any       `json:"final_answer"`
	Explanation    string    `json:"explanation"`
	Citations      []string  `json:"citations"`
	Confidence     float64   `json:"confidence"`
	Degraded       bool      `json:"degraded,omitempty"`
	Trail          []string  `json:"trail"`
	CreatedAt      time.Time `json:"created_at"`
}

// FromState builds a record from a terminal state.
func FromState(st analyst.State, fingerprint string) *Record {
	citations := slices.Clone(st.Citations)
	if citations == nil {
		citations = []string{}
	}
	return &Record{
		RunID:          st.RunID,
		Fingerprint:    fingerprint,
		Question:       st.Question,
		FormatHint:     st.FormatHint,
		Classification: string(st.Classification),
		Plan:           st.Plan,
		Query:          st.QueryText(),
		Error:          st.ErrorText(),
		RepairCount:    st.RepairCount,
		FinalAnswer:    st.FinalAnswer,
		Explanation:    st.Explanation,
		Citations:      citations,
		Confidence:     st.Confidence,
		Degraded:       st.Degraded(),
		Trail:          slices.Clone(st.Trail),
		CreatedAt:      time.Now().UTC(),
	}
}

// Clone returns a copy that shares no slices with r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Citations = slices.Clone(r.Citations)
	out.Trail = slices.Clone(r.Trail)
	return &out
}

// Validate checks the fields every backend indexes on.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: record cannot be nil", apperr.ErrInvalidInput)
	}
	if r.RunID == "" {
		return fmt.Errorf("%w: record run id is required", apperr.ErrInvalidInput)
	}
	return nil
}

// Store persists run records. Lookups that find nothing return an error
// wrapping errors.ErrNotFound.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Get(ctx context.Context, runID string) (*Record, error)
	// FindByFingerprint returns the most recently saved record for the fingerprint.
	FindByFingerprint(ctx context.Context, fingerprint string) (*Record, error)
}

// Fingerprint identifies a request against a particular corpus. The question
// is whitespace-normalised so trivially different spellings share an entry.
func Fingerprint(question, formatHint, corpusDigest string) string {
	h := blake3.New()
	for _, part := range []string{
		strings.Join(strings.Fields(question), " "),
		strings.ToLower(strings.TrimSpace(formatHint)),
		corpusDigest,
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// InMemoryStore keeps records in process memory.
type InMemoryStore struct {
	mu            sync.RWMutex
	records       map[string]*Record
	byFingerprint map[string]string
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:       make(map[string]*Record),
		byFingerprint: make(map[string]string),
	}
}

// Save stores a copy of the record.
func (s *InMemoryStore) Save(_ context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RunID] = record.Clone()
	if record.Fingerprint != "" {
		s.byFingerprint[record.Fingerprint] = record.RunID
	}
	return nil
}

// Get returns the record for a run.
func (s *InMemoryStore) Get(_ context.Context, runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s", apperr.ErrNotFound, runID)
	}
	return rec.Clone(), nil
}

// FindByFingerprint returns the latest record saved under the fingerprint.
func (s *InMemoryStore) FindByFingerprint(ctx context.Context, fingerprint string) (*Record, error) {
	s.mu.RLock()
	runID, ok := s.byFingerprint[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: fingerprint %s", apperr.ErrNotFound, fingerprint)
	}
	return s.Get(ctx, runID)
}

// Count returns the number of stored records.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every record.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	s.byFingerprint = make(map[string]string)
}
