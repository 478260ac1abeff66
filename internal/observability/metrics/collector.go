// Package metrics exposes Prometheus instrumentation for the retrieval
// and indexing pipelines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	// Query metrics
	QueriesTotal   *prometheus.CounterVec
	EmptyResults   prometheus.Counter
	SearchDuration prometheus.Histogram

	// Indexing metrics
	ChunksIndexed *prometheus.CounterVec

	// Generation metrics
	GenerationErrors *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry, so tests and
// repeated construction never collide on the global one.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_queries_total",
				Help: "Total search queries processed",
			},
			[]string{"outcome"},
		),

		EmptyResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kb_empty_results_total",
				Help: "Queries that returned no relevant documents",
			},
		),

		SearchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kb_search_duration_seconds",
				Help:    "End-to-end search latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		ChunksIndexed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_chunks_indexed_total",
				Help: "Chunks processed by the indexer",
			},
			[]string{"outcome"},
		),

		GenerationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kb_generation_errors_total",
				Help: "Answer generation failures by kind",
			},
			[]string{"kind"},
		),
	}

	c.registry.MustRegister(
		c.QueriesTotal,
		c.EmptyResults,
		c.SearchDuration,
		c.ChunksIndexed,
		c.GenerationErrors,
	)

	return c
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
