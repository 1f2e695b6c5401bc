package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the certificate registry.
type Metrics struct {
	CertificatesCreated    prometheus.Counter
	CertificatesRegistered prometheus.Counter
	CertificatesSuspended  prometheus.Counter
	DuplicateRejections    prometheus.Counter
	Verifications          *prometheus.CounterVec
	OperationDuration      *prometheus.HistogramVec
}

// New registers the registry metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CertificatesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_certificates_created_total",
			Help: "Certificates created from credential fields",
		}),
		CertificatesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_certificates_registered_total",
			Help: "Certificates registered from a precomputed identity",
		}),
		CertificatesSuspended: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_certificates_suspended_total",
			Help: "Active certificates moved to suspended",
		}),
		DuplicateRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_duplicate_rejections_total",
			Help: "Create or register calls rejected because the identity exists",
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certregistry_verifications_total",
			Help: "Validity queries by outcome reason",
		}, []string{"reason"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certregistry_operation_duration_seconds",
			Help:    "Duration of registry service operations",
			Buckets: operationBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncCreated() {
	m.CertificatesCreated.Inc()
}

func (m *Metrics) IncRegistered() {
	m.CertificatesRegistered.Inc()
}

func (m *Metrics) IncSuspended() {
	m.CertificatesSuspended.Inc()
}

func (m *Metrics) IncDuplicate() {
	m.DuplicateRejections.Inc()
}

// IncVerification counts one validity query with its outcome reason.
func (m *Metrics) IncVerification(reason string) {
	m.Verifications.WithLabelValues(reason).Inc()
}

// ObserveOperation records the duration of operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
