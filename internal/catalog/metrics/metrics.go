package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the catalog module.
type Metrics struct {
	DomainsRegistered prometheus.Counter
	SnapshotUpdates   prometheus.Counter
}

// New creates a new Metrics instance with all catalog metrics registered.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the catalog metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DomainsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_catalog_domains_registered_total",
			Help: "Total number of domains added to the catalog",
		}),
		SnapshotUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_catalog_snapshot_updates_total",
			Help: "Total number of operator snapshot updates",
		}),
	}
}

func (m *Metrics) IncrementDomainsRegistered() {
	m.DomainsRegistered.Inc()
}

func (m *Metrics) IncrementSnapshotUpdates() {
	m.SnapshotUpdates.Inc()
}
