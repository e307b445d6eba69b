package batch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "productgen"

// Metrics records batch outcomes in a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	items       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	attempts    prometheus.Histogram
	corrections prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batch_items_total",
			Help:      "Processed batch items by outcome and stage.",
		}, []string{"outcome", "stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_item_duration_seconds",
			Help:      "Time spent on one batch item.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "generation_attempts",
			Help:      "Generation attempts per accepted record.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "normalizer_corrections_total",
			Help:      "Values rewritten by the normalizer.",
		}),
	}
	m.registry.MustRegister(m.items, m.duration, m.attempts, m.corrections)
	return m
}

func (m *Metrics) observeAccepted(elapsed time.Duration, attempts, corrections int) {
	if m == nil {
		return
	}
	m.items.WithLabelValues("accepted", "").Inc()
	m.duration.WithLabelValues("accepted").Observe(elapsed.Seconds())
	m.attempts.Observe(float64(attempts))
	m.corrections.Add(float64(corrections))
}

func (m *Metrics) observeRejected(stage Stage, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.items.WithLabelValues("rejected", string(stage)).Inc()
	m.duration.WithLabelValues("rejected").Observe(elapsed.Seconds())
}

func (m *Metrics) observeSkipped(n int) {
	if m == nil || n == 0 {
		return
	}
	m.items.WithLabelValues("skipped", "").Add(float64(n))
}

// Registry exposes the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
