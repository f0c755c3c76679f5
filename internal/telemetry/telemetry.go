// Package telemetry exposes prometheus metrics for the coaching pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry holds the pipeline metric instruments. A nil *Telemetry is valid
// and records nothing, so components take it as an optional dependency.
type Telemetry struct {
	intentTotal       *prometheus.CounterVec
	retrievalFailures prometheus.Counter
	generationTotal   *prometheus.CounterVec
	chatDuration      *prometheus.HistogramVec
}

// New registers the pipeline metrics on the given registerer (nil uses the
// default registry).
func New(reg prometheus.Registerer) *Telemetry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Telemetry{
		intentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wearcoach_intent_total",
			Help: "Intent classifications by label and resolution source.",
		}, []string{"intent", "source"}),
		retrievalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "wearcoach_retrieval_failures_total",
			Help: "Similarity searches that degraded to an empty result.",
		}),
		generationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wearcoach_generation_total",
			Help: "Routine generations by outcome (done, repaired, fallback).",
		}, []string{"outcome"}),
		chatDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wearcoach_chat_duration_seconds",
			Help:    "End-to-end chat handling latency by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}
}

// ObserveIntent records one classification outcome.
func (t *Telemetry) ObserveIntent(intent, source string) {
	if t == nil {
		return
	}
	t.intentTotal.WithLabelValues(intent, source).Inc()
}

// ObserveRetrievalFailure records a degraded similarity search.
func (t *Telemetry) ObserveRetrievalFailure() {
	if t == nil {
		return
	}
	t.retrievalFailures.Inc()
}

// ObserveGeneration records one routine generation outcome.
func (t *Telemetry) ObserveGeneration(outcome string) {
	if t == nil {
		return
	}
	t.generationTotal.WithLabelValues(outcome).Inc()
}

// ObserveChatDuration records the handling latency for a chat path.
func (t *Telemetry) ObserveChatDuration(path string, seconds float64) {
	if t == nil {
		return
	}
	t.chatDuration.WithLabelValues(path).Observe(seconds)
}
