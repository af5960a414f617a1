// Package metrics holds the Prometheus collectors for the answering workflow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// stepDuration tracks per-step latency by step and outcome
	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hybridqa_step_duration_seconds",
		Help:    "Workflow step duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"step", "result"})

	// routeTotal counts routing decisions by classification
	routeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridqa_route_total",
		Help: "Questions routed by classification",
	}, []string{"classification"})

	// fallbackTotal counts collaborator failures recovered by a step fallback
	fallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridqa_fallback_total",
		Help: "Collaborator failures recovered locally, by step",
	}, []string{"step"})

	// repairTotal counts repair attempts
	repairTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hybridqa_repair_total",
		Help: "Query repair attempts",
	})

	// confidence tracks the distribution of final confidence scores
	confidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hybridqa_confidence",
		Help:    "Final answer confidence",
		Buckets: prometheus.LinearBuckets(0, 0.2, 6),
	})

	// llmDuration tracks model call latency by provider and outcome
	llmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hybridqa_llm_request_duration_seconds",
		Help:    "LLM request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"provider", "result"})

	// llmTokens counts tokens reported by providers
	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridqa_llm_tokens_total",
		Help: "Tokens consumed by LLM requests",
	}, []string{"provider", "direction"})

	// recordTotal counts batch records by result
	recordTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hybridqa_batch_records_total",
		Help: "Batch records processed, by result",
	}, []string{"result"})
)

// ObserveStep records one step execution.
func ObserveStep(step string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	stepDuration.WithLabelValues(step, result).Observe(elapsed.Seconds())
}

// ObserveLLM records one model call and its token usage.
func ObserveLLM(provider string, elapsed time.Duration, inputTokens, outputTokens int64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	llmDuration.WithLabelValues(provider, result).Observe(elapsed.Seconds())
	if inputTokens > 0 {
		llmTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		llmTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// ObserveRoute records a routing decision.
func ObserveRoute(classification string) {
	routeTotal.WithLabelValues(classification).Inc()
}

// ObserveFallback records a locally recovered collaborator failure.
func ObserveFallback(step string) {
	fallbackTotal.WithLabelValues(step).Inc()
}

// ObserveRepair records one repair attempt.
func ObserveRepair() {
	repairTotal.Inc()
}

// ObserveConfidence records the confidence of a terminal answer.
func ObserveConfidence(v float64) {
	confidence.Observe(v)
}

// ObserveRecord records a processed batch record; result is ok, cached or error.
func ObserveRecord(result string) {
	recordTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
