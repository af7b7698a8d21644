package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent operations.
type Metrics struct {
	ConsentsRecorded  *prometheus.CounterVec
	ConsentsWithdrawn *prometheus.CounterVec
	RecordLatency     prometheus.Histogram

	StoreOperationLatency *prometheus.HistogramVec
}

// New registers consent collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConsentsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_consents_recorded_total",
			Help: "Total number of consent decisions recorded, labeled by type and outcome",
		}, []string{"consent_type", "given"}),
		ConsentsWithdrawn: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_consents_withdrawn_total",
			Help: "Total number of consents withdrawn, labeled by type",
		}, []string{"consent_type"}),
		RecordLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_consent_record_latency_seconds",
			Help:    "Latency of consent record operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		StoreOperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_consent_store_operation_latency_seconds",
			Help:    "Latency of consent store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementRecorded(consentType string, given bool) {
	label := "false"
	if given {
		label = "true"
	}
	m.ConsentsRecorded.WithLabelValues(consentType, label).Inc()
}

func (m *Metrics) IncrementWithdrawn(consentType string) {
	m.ConsentsWithdrawn.WithLabelValues(consentType).Inc()
}

func (m *Metrics) ObserveRecordLatency(durationSeconds float64) {
	m.RecordLatency.Observe(durationSeconds)
}

// ObserveStoreOperationLatency records the latency of a store operation.
func (m *Metrics) ObserveStoreOperationLatency(operation string, durationSeconds float64) {
	m.StoreOperationLatency.WithLabelValues(operation).Observe(durationSeconds)
}
