package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for compliance audit emission.
type Metrics struct {
	EventsEmitted   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers compliance audit metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_audit_compliance_emitted_total",
			Help: "Total number of compliance audit events persisted",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_audit_compliance_persist_failures_total",
			Help: "Total number of compliance audit events that failed to persist",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certregistry_audit_compliance_persist_duration_seconds",
			Help:    "Duration of synchronous compliance audit writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncEventsEmitted() {
	m.EventsEmitted.Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
