package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the transition log.
type Metrics struct {
	TransitionsRecorded *prometheus.CounterVec
	Rejections          *prometheus.CounterVec
	SubmitDuration      *prometheus.HistogramVec
	Resolutions         *prometheus.CounterVec
}

// New creates a new Metrics instance with all lifecycle metrics registered.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regwatch_lifecycle_transitions_recorded_total",
			Help: "Total number of transitions appended to the log",
		}, []string{"kind"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regwatch_lifecycle_rejections_total",
			Help: "Total number of registration transitions refused by the enforcer",
		}, []string{"reason"}),
		SubmitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regwatch_lifecycle_submit_duration_seconds",
			Help:    "Time to validate and append a transition, including lock wait",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"kind"}),
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regwatch_lifecycle_resolutions_total",
			Help: "Total number of effective-state resolutions by query",
		}, []string{"query"}),
	}
}

func (m *Metrics) IncrementRecorded(kind string) {
	m.TransitionsRecorded.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementRejected(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSubmit(kind string, start time.Time) {
	m.SubmitDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementResolution(query string) {
	m.Resolutions.WithLabelValues(query).Inc()
}
