// Package metrics exposes load engine activity as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/leapstack-labs/starload/internal/engine"
	"github.com/leapstack-labs/starload/internal/features"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "starload"

// DurationBuckets are tuned for script loads (1ms - 5s).
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Collector records engine events.
//
// Metrics:
//   - starload_load_requests_total: operations by op and status
//   - starload_load_duration_seconds: operation duration by op
//   - starload_loaded_features: size of the loaded features registry
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates the metrics and registers them with registry. If
// registry is nil a fresh one is created. loaded backs the features gauge
// and may be nil.
func NewCollector(registry *prometheus.Registry, loaded *features.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "load_requests_total",
				Help:      "Total number of require, require_relative, load and run operations",
			},
			[]string{"op", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "load_duration_seconds",
				Help:      "Duration of load operations in seconds, nested loads included",
				Buckets:   DurationBuckets,
			},
			[]string{"op"},
		),
	}
	registry.MustRegister(c.requests, c.duration)

	if loaded != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "loaded_features",
				Help:      "Number of features recorded as loaded",
			},
			func() float64 { return float64(loaded.Len()) },
		))
	}
	return c
}

// Observe implements engine.Observer.
func (c *Collector) Observe(ev engine.Event) {
	op := string(ev.Op)
	c.requests.WithLabelValues(op, ev.Status.String()).Inc()
	c.duration.WithLabelValues(op).Observe(ev.Duration.Seconds())
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
