package bulk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Runs        *prometheus.CounterVec
	ItemsTotal  prometheus.Counter
	ItemsFailed prometheus.Counter
	RunDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_bulk_anonymization_runs_total",
			Help: "Total number of bulk anonymization runs, labeled by status",
		}, []string{"status"}),
		ItemsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_bulk_anonymization_items_total",
			Help: "Total number of subjects processed by bulk runs",
		}),
		ItemsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_bulk_anonymization_items_failed_total",
			Help: "Total number of subjects that failed during bulk runs",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_bulk_anonymization_duration_seconds",
			Help:    "Wall time of bulk anonymization runs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
	}
}

func (m *Metrics) ObserveRun(r *Result, durationSeconds float64) {
	status := "completed"
	if r.Cancelled {
		status = "cancelled"
	}
	m.Runs.WithLabelValues(status).Inc()
	m.ItemsTotal.Add(float64(r.Current))
	m.ItemsFailed.Add(float64(r.Failed))
	m.RunDuration.Observe(durationSeconds)
}
