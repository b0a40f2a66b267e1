package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for compliance event emission.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "truconn_audit_compliance_events_total",
			Help: "Total compliance events written to the outbox",
		}, []string{"type"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "truconn_audit_compliance_persist_failures_total",
			Help: "Total compliance event writes that failed",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "truconn_audit_compliance_persist_duration_seconds",
			Help:    "Duration of compliance event writes",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

func (m *Metrics) IncEventsEmitted(eventType string) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	if m != nil {
		m.PersistDuration.Observe(seconds)
	}
}
