package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(routeTotal.WithLabelValues("hybrid"))
	ObserveRoute("hybrid")
	ObserveRoute("hybrid")
	if got := testutil.ToFloat64(routeTotal.WithLabelValues("hybrid")) - before; got != 2 {
		t.Fatalf("expected 2 routed, got %v", got)
	}

	repairs := testutil.ToFloat64(repairTotal)
	ObserveRepair()
	if got := testutil.ToFloat64(repairTotal) - repairs; got != 1 {
		t.Fatalf("expected 1 repair, got %v", got)
	}

	input := testutil.ToFloat64(llmTokens.WithLabelValues("stub", "input"))
	ObserveLLM("stub", time.Millisecond, 12, 0, nil)
	ObserveLLM("stub", time.Millisecond, 0, 0, errors.New("down"))
	if got := testutil.ToFloat64(llmTokens.WithLabelValues("stub", "input")) - input; got != 12 {
		t.Fatalf("expected 12 input tokens, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveStep("router", 5*time.Millisecond, nil)
	ObserveRecord("ok")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"hybridqa_step_duration_seconds", "hybridqa_batch_records_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metric %s missing from scrape", name)
		}
	}
}
