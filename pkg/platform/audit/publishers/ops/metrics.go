package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for ops audit tracking.
type Metrics struct {
	Tracked               prometheus.Counter
	Sampled               prometheus.Counter
	BufferFull            prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	PersistFailures       prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers ops audit metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Tracked: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_audit_ops_tracked_total",
			Help: "Total number of operational audit events persisted",
		}),
		Sampled: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_audit_ops_sampled_total",
			Help: "Total number of operational audit events dropped by sampling",
		}),
		BufferFull: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_audit_ops_buffer_full_total",
			Help: "Total number of operational audit events dropped because the buffer was full",
		}),
		CircuitBreakerDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_audit_ops_circuit_breaker_dropped_total",
			Help: "Total number of operational audit events dropped by the open circuit breaker",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_audit_ops_persist_failures_total",
			Help: "Total number of operational audit event persistence failures",
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "certregistry_audit_ops_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncTracked() {
	m.Tracked.Inc()
}

func (m *Metrics) IncSampled() {
	m.Sampled.Inc()
}

func (m *Metrics) IncBufferFull() {
	m.BufferFull.Inc()
}

func (m *Metrics) IncCircuitBreakerDropped() {
	m.CircuitBreakerDropped.Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
