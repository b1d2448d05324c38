// Package metrics holds the Prometheus collectors of the query service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragchat"

// Ask outcomes.
const (
	OutcomeAnswered     = "answered"
	OutcomeCached       = "cached"
	OutcomeNotIngested  = "not_ingested"
	OutcomeInvalidQuery = "invalid_query"
	OutcomeError        = "error"
)

type Metrics struct {
	Registry *prometheus.Registry

	ingests       *prometheus.CounterVec
	indexedChunks prometheus.Gauge
	asks          *prometheus.CounterVec
	stages        *prometheus.HistogramVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ingests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingests_total",
			Help:      "Folder ingestions by result.",
		}, []string{"result"}),
		indexedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_chunks",
			Help:      "Chunks in the active index.",
		}),
		asks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asks_total",
			Help:      "Questions by outcome.",
		}, []string{"outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Latency of pipeline stages.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
	}
	m.Registry.MustRegister(
		m.ingests,
		m.indexedChunks,
		m.asks,
		m.stages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Ingest records an ingestion; chunks is the new index size on success.
func (m *Metrics) Ingest(err error, chunks int) {
	if m == nil {
		return
	}
	if err != nil {
		m.ingests.WithLabelValues("error").Inc()
		return
	}
	m.ingests.WithLabelValues("ok").Inc()
	m.indexedChunks.Set(float64(chunks))
}

func (m *Metrics) Cleared() {
	if m == nil {
		return
	}
	m.indexedChunks.Set(0)
}

func (m *Metrics) Ask(outcome string) {
	if m == nil {
		return
	}
	m.asks.WithLabelValues(outcome).Inc()
}

// Stage observes the time since start under the stage label.
func (m *Metrics) Stage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
