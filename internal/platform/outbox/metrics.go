package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts relay outcomes.
type Metrics struct {
	Relayed prometheus.Counter
	Failed  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Relayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_outbox_relayed_total",
			Help: "Total number of outbox entries published to Kafka",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "certregistry_outbox_failed_total",
			Help: "Total number of outbox entries left pending after a failed relay",
		}),
	}
}
