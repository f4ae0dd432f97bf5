// Package metrics wires the store's append and query paths to Prometheus.
// Unlike a package-level promauto collector, Metrics is instance-scoped so
// that opening more than one *store.Store in a process (as the test suite
// routinely does) doesn't collide on collector registration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	AppendsTotal        prometheus.Counter
	AppendFailuresTotal *prometheus.CounterVec
	EventsAppendedTotal prometheus.Counter
	AppendLatency       prometheus.Histogram

	QueriesTotal          prometheus.Counter
	QueryPositionsEmitted prometheus.Counter

	CacheHits   prometheus.Gauge
	CacheMisses prometheus.Gauge
}

// New registers a fresh set of collectors against reg, labelled with
// instance so metrics from multiple stores in one process are
// distinguishable.
func New(reg prometheus.Registerer, instance string) *Metrics {
	constLabels := prometheus.Labels{"instance": instance}
	factory := prometheus.WrapRegistererWith(constLabels, reg)

	m := &Metrics{
		AppendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventstore_appends_total",
			Help: "Total number of Append calls, successful or not.",
		}),
		AppendFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventstore_append_failures_total",
			Help: "Append calls that failed, labelled by error kind.",
		}, []string{"kind"}),
		EventsAppendedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventstore_events_appended_total",
			Help: "Total number of events successfully committed.",
		}),
		AppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventstore_append_latency_seconds",
			Help:    "Append commit latency.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 16),
		}),
		QueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventstore_queries_total",
			Help: "Total number of Query calls.",
		}),
		QueryPositionsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventstore_query_positions_emitted_total",
			Help: "Total number of positions emitted across all query iterators.",
		}),
		CacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventstore_cache_hits",
			Help: "Cumulative reference-hydration cache hits, sampled periodically.",
		}),
		CacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventstore_cache_misses",
			Help: "Cumulative reference-hydration cache misses, sampled periodically.",
		}),
	}

	factory.MustRegister(
		m.AppendsTotal,
		m.AppendFailuresTotal,
		m.EventsAppendedTotal,
		m.AppendLatency,
		m.QueriesTotal,
		m.QueryPositionsEmitted,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

// ObserveAppendLatency records the duration since start.
func (m *Metrics) ObserveAppendLatency(start time.Time) {
	m.AppendLatency.Observe(time.Since(start).Seconds())
}

// Noop returns a Metrics whose collectors are registered only against a
// fresh private registry that nothing gathers, used when a caller does not
// ask for metrics.
func Noop() *Metrics {
	return New(prometheus.NewRegistry(), "noop")
}
