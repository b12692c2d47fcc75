package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published      prometheus.Counter
	PublishErrors  prometheus.Counter
	SkippedBatches prometheus.Counter
	Pending        prometheus.Gauge
	CircuitOpen    prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_outbox_published_total",
			Help: "Outbox entries relayed to the broker",
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_outbox_publish_errors_total",
			Help: "Outbox batches that failed to publish",
		}),
		SkippedBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_outbox_skipped_batches_total",
			Help: "Relay ticks skipped while the circuit was open",
		}),
		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "regwatch_outbox_pending",
			Help: "Outbox entries not yet relayed",
		}),
		CircuitOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "regwatch_outbox_circuit_open",
			Help: "1 while the relay circuit breaker is open",
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	m.Published.Add(float64(n))
}

func (m *Metrics) IncrementPublishErrors() {
	m.PublishErrors.Inc()
}

func (m *Metrics) IncrementSkipped() {
	m.SkippedBatches.Inc()
}

func (m *Metrics) SetPending(n int) {
	m.Pending.Set(float64(n))
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
