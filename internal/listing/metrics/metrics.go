package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the listing queries and the snapshot
// cache.
type Metrics struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheErrors prometheus.Counter
	QueryResult *prometheus.GaugeVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_snapshot_cache_hits_total",
			Help: "Cached-snapshot listings served from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_snapshot_cache_misses_total",
			Help: "Cached-snapshot listings rebuilt from the catalog",
		}),
		CacheErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_snapshot_cache_errors_total",
			Help: "Snapshot cache backend failures; the listing falls back to the catalog",
		}),
		QueryResult: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regwatch_listing_result_size",
			Help: "Number of domains returned by the last run of each listing",
		}, []string{"listing"}),
	}
}

func (m *Metrics) IncrementCacheHit()   { m.CacheHits.Inc() }
func (m *Metrics) IncrementCacheMiss()  { m.CacheMisses.Inc() }
func (m *Metrics) IncrementCacheError() { m.CacheErrors.Inc() }

func (m *Metrics) ObserveResult(listing string, n int) {
	m.QueryResult.WithLabelValues(listing).Set(float64(n))
}
