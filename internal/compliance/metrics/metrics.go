package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance engine.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Per-rule check latency
	CheckDuration *prometheus.HistogramVec

	// Findings by rule
	Findings *prometheus.CounterVec

	// Scan outcomes and latency
	ScansTotal   *prometheus.CounterVec
	ScanDuration prometheus.Histogram

	// Rows written vs. deduplicated by the reconciler
	RecordsCreated      *prometheus.CounterVec
	RecordsDeduplicated *prometheus.CounterVec

	// Score distribution across scans
	RiskScore prometheus.Histogram

	StatusTransitions *prometheus.CounterVec
}

// New registers the compliance metrics with reg. A nil reg uses the default
// registry; tests pass prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "truconn_compliance_check_duration_seconds",
			Help:    "Duration of individual rule checks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"rule"}),

		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "truconn_compliance_findings_total",
			Help: "Total rule findings produced by scans",
		}, []string{"rule"}),

		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "truconn_compliance_scans_total",
			Help: "Total compliance scans by outcome",
		}, []string{"outcome"}), // outcome: "success", "failure"

		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "truconn_compliance_scan_duration_seconds",
			Help:    "Duration of a full scan including persistence",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		RecordsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "truconn_compliance_records_created_total",
			Help: "Audit and violation rows created by scans",
		}, []string{"kind"}), // kind: "audit", "violation"

		RecordsDeduplicated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "truconn_compliance_records_deduplicated_total",
			Help: "Findings that matched an existing record inside the dedup window",
		}, []string{"kind"}),

		RiskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "truconn_compliance_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "truconn_compliance_audit_transitions_total",
			Help: "Operator audit status transitions by target status",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveCheckDuration(rule string, d time.Duration) {
	if m != nil {
		m.CheckDuration.WithLabelValues(rule).Observe(d.Seconds())
	}
}

func (m *Metrics) IncFinding(rule string) {
	if m != nil {
		m.Findings.WithLabelValues(rule).Inc()
	}
}

// ObserveScan records a finished scan.
func (m *Metrics) ObserveScan(success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRiskScore(score int) {
	if m != nil {
		m.RiskScore.Observe(float64(score))
	}
}

func (m *Metrics) IncCreated(kind string) {
	if m != nil {
		m.RecordsCreated.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncDeduplicated(kind string) {
	if m != nil {
		m.RecordsDeduplicated.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncTransition(status string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(status).Inc()
	}
}
