// Package metrics registers the prometheus instrumentation for the
// forecast pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BoundsRejections counts out-of-range measurements dropped at ingest.
	BoundsRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swellfuse",
		Name:      "bounds_rejections_total",
		Help:      "Raw values rejected by the numeric bounds validator",
	}, []string{"field"})

	// StageDuration observes wall time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "swellfuse",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each forecast pipeline stage",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"stage"})

	// LLMTokens tracks token usage for cost accounting.
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swellfuse",
		Name:      "llm_tokens_total",
		Help:      "LLM tokens consumed, by specialist and direction",
	}, []string{"specialist", "kind"})

	// LLMRetries counts retried LLM calls.
	LLMRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "swellfuse",
		Name:      "llm_retries_total",
		Help:      "LLM calls that required a retry",
	})

	// ExcludedEvents counts swell events dropped for quality reasons.
	ExcludedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swellfuse",
		Name:      "excluded_events_total",
		Help:      "Swell events excluded before prompt assembly",
	}, []string{"source"})
)

// ObserveStage records a stage duration in seconds.
func ObserveStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}

// BoundsRejected increments the rejection counter for a field.
func BoundsRejected(field string) {
	BoundsRejections.WithLabelValues(field).Inc()
}

// TokensUsed records prompt/completion token consumption for a specialist.
func TokensUsed(specialist string, prompt, completion int) {
	LLMTokens.WithLabelValues(specialist, "prompt").Add(float64(prompt))
	LLMTokens.WithLabelValues(specialist, "completion").Add(float64(completion))
}
