package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"covid-parser/pkg/storage"
)

const namespace = "covidparser"

// CacheStatsSource is implemented by storage.FetchCache.
type CacheStatsSource interface {
	Stats() storage.CacheStats
}

// Metrics exports request outcomes and fetch cache counters.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// New registers collectors on a private registry. cache may be nil.
func New(cache CacheStatsSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Dispatch calls by operation, status and severity.",
		}, []string{"op", "status", "severity"}),
	}
	m.registry.MustRegister(m.requests)

	if cache != nil {
		m.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Payloads served from the fetch cache.",
			}, func() float64 { return float64(cache.Stats().Hits) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "fetches_total",
				Help:      "Successful upstream fetches.",
			}, func() float64 { return float64(cache.Stats().Fetches) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "failures_total",
				Help:      "Failed upstream fetches.",
			}, func() float64 { return float64(cache.Stats().Failures) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "URLs currently held in the fetch cache.",
			}, func() float64 { return float64(cache.Stats().Entries) }),
		)
	}
	return m
}

// ObserveRequest counts one dispatch call.
func (m *Metrics) ObserveRequest(op, status string, severity int) {
	m.requests.WithLabelValues(op, status, strconv.Itoa(severity)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
