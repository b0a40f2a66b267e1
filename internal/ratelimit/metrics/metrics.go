package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions        *prometheus.CounterVec
	FallbackChecks   prometheus.Counter
	StoreErrors      prometheus.Counter
	CircuitOpenGauge prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "truconn_ratelimit_decisions_total",
			Help: "Rate limit decisions by endpoint class and outcome",
		}, []string{"class", "outcome"}),
		FallbackChecks: f.NewCounter(prometheus.CounterOpts{
			Name: "truconn_ratelimit_fallback_checks_total",
			Help: "Checks served by the in-memory fallback store",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "truconn_ratelimit_store_errors_total",
			Help: "Errors returned by the primary bucket store",
		}),
		CircuitOpenGauge: f.NewGauge(prometheus.GaugeOpts{
			Name: "truconn_ratelimit_circuit_open",
			Help: "1 while the primary bucket store circuit is open",
		}),
	}
}

func (m *Metrics) RecordDecision(class string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.Decisions.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.FallbackChecks.Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpenGauge.Set(1)
		return
	}
	m.CircuitOpenGauge.Set(0)
}
