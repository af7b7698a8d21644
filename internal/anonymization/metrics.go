package anonymization

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared with the bulk orchestrator.
const (
	OutcomeAnonymized        = "anonymized"
	OutcomeAlreadyAnonymized = "already_anonymized"
	OutcomeFailed            = "failed"
)

// Metrics holds Prometheus collectors for anonymization.
type Metrics struct {
	Anonymizations *prometheus.CounterVec
	Latency        prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Anonymizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_anonymizations_total",
			Help: "Total number of anonymization attempts, labeled by outcome",
		}, []string{"outcome"}),
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_anonymization_latency_seconds",
			Help:    "Latency of single-subject anonymization in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	m.Anonymizations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLatency(durationSeconds float64) {
	m.Latency.Observe(durationSeconds)
}
