// Package metrics exposes relay counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the relay collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg       *prometheus.Registry
	ingest    *prometheus.CounterVec
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	conns     prometheus.Gauge
	pulls     *prometheus.CounterVec
}

// New registers all collectors. cacheEntries, when non-nil, is sampled
// on every scrape for relay_cache_entries.
func New(cacheEntries func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,
		ingest: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_ingest_total",
			Help: "Ingest attempts by result (ok or rejection reason).",
		}, []string{"result"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_fanout_delivered_total",
			Help: "Events handed to push connections.",
		}, []string{"kind"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_fanout_dropped_total",
			Help: "Events dropped because a push connection was slow or gone.",
		}, []string{"kind"}),
		conns: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_push_connections",
			Help: "Open push connections.",
		}),
		pulls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_pull_total",
			Help: "Pull fallback requests by result (hit or miss).",
		}, []string{"result"}),
	}
	if cacheEntries != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_cache_entries",
			Help: "Drones with a cached batch.",
		}, func() float64 { return float64(cacheEntries()) })
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}


// IngestResult counts one ingest outcome.
func (m *Metrics) IngestResult(result string) {
	if m == nil {
		return
	}
	m.ingest.WithLabelValues(result).Inc()
}

// Delivered counts one event queued for a connection.
func (m *Metrics) Delivered(kind string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(kind).Inc()
}

// Dropped counts one event a connection could not take.
func (m *Metrics) Dropped(kind string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.conns.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.conns.Dec()
}

// Pull counts one pull fallback lookup.
func (m *Metrics) Pull(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.pulls.WithLabelValues(result).Inc()
}
