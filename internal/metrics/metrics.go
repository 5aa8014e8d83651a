// Package metrics provides Prometheus instrumentation for a flagprobe client.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so several clients in one process do not collide. Every method is
// safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch results recorded by the sync loop.
const (
	FetchPublished = "published"
	FetchUnchanged = "unchanged"
	FetchTransport = "transport_error"
	FetchParse     = "parse_error"
)

// Metrics holds all Prometheus collectors used by a flagprobe client.
type Metrics struct {
	Registry *prometheus.Registry

	FetchesTotal     *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	SnapshotVersion  prometheus.Gauge
	SnapshotToggles  prometheus.Gauge
	EvaluationsTotal *prometheus.CounterVec
	EventsFlushed    prometheus.Counter
	EventsDropped    prometheus.Counter
	FlushFailures    prometheus.Counter
}

// New creates and registers all flagprobe metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flagprobe_sync_fetches_total",
			Help: "Total number of toggle fetch attempts by result.",
		}, []string{"result"}),

		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flagprobe_sync_fetch_duration_seconds",
			Help:    "Toggle fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flagprobe_snapshot_version",
			Help: "Version of the currently published toggle snapshot.",
		}),

		SnapshotToggles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flagprobe_snapshot_toggles",
			Help: "Number of toggles in the currently published snapshot.",
		}),

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flagprobe_evaluations_total",
			Help: "Total number of toggle evaluations by reason.",
		}, []string{"reason"}),

		EventsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flagprobe_events_flushed_total",
			Help: "Total number of access events handed to the event sink.",
		}),

		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flagprobe_events_dropped_total",
			Help: "Total number of access events recorded after the recorder was closed.",
		}),

		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flagprobe_event_flush_failures_total",
			Help: "Total number of event flushes the sink rejected.",
		}),
	}

	reg.MustRegister(
		m.FetchesTotal,
		m.FetchDuration,
		m.SnapshotVersion,
		m.SnapshotToggles,
		m.EvaluationsTotal,
		m.EventsFlushed,
		m.EventsDropped,
		m.FlushFailures,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordFetch counts one fetch attempt and its latency.
func (m *Metrics) RecordFetch(result string, seconds float64) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(seconds)
}

// SetSnapshot updates the published snapshot gauges.
func (m *Metrics) SetSnapshot(version uint64, toggles int) {
	if m == nil {
		return
	}
	m.SnapshotVersion.Set(float64(version))
	m.SnapshotToggles.Set(float64(toggles))
}

// RecordEvaluation increments the evaluation counter for reason.
func (m *Metrics) RecordEvaluation(reason string) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(reason).Inc()
}

// AddEventsFlushed counts events accepted by the sink.
func (m *Metrics) AddEventsFlushed(n int) {
	if m == nil {
		return
	}
	m.EventsFlushed.Add(float64(n))
}

// IncEventsDropped counts one event recorded after close.
func (m *Metrics) IncEventsDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// IncFlushFailures counts one failed flush.
func (m *Metrics) IncFlushFailures() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}
