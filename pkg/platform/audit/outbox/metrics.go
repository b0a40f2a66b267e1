package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "truconn_outbox_published_total",
			Help: "Total outbox entries forwarded to Kafka",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Name: "truconn_outbox_produce_failures_total",
			Help: "Total outbox batches that failed to produce",
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	if m != nil && n > 0 {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) IncFailures() {
	if m != nil {
		m.Failures.Inc()
	}
}
