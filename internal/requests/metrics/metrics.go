package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the request registry.
type Metrics struct {
	RequestsCreated     *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	RectificationsDone  prometheus.Counter
	NotificationsFailed prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_requests_created_total",
			Help: "Total number of data subject requests logged, labeled by type",
		}, []string{"request_type"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_request_status_transitions_total",
			Help: "Total number of request status updates, labeled by target",
		}, []string{"target"}),
		RectificationsDone: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_rectifications_applied_total",
			Help: "Total number of rectifications written to subject records",
		}),
		NotificationsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "compliance_request_notifications_failed_total",
			Help: "Total number of completion notifications that could not be sent",
		}),
	}
}

func (m *Metrics) IncrementCreated(requestType string) {
	m.RequestsCreated.WithLabelValues(requestType).Inc()
}

func (m *Metrics) IncrementTransition(target string) {
	m.StatusTransitions.WithLabelValues(target).Inc()
}

func (m *Metrics) IncrementRectification() {
	m.RectificationsDone.Inc()
}

func (m *Metrics) IncrementNotificationFailure() {
	m.NotificationsFailed.Inc()
}
