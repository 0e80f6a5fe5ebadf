// Package metrics exposes Prometheus instrumentation for export sessions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	regenerations  prometheus.Counter
	invalidations  *prometheus.CounterVec
	rearms         prometheus.Counter
	rendersTotal   *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	savesTotal     *prometheus.CounterVec
	encodedBytes   *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		regenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webx_pipeline_regenerations_total",
			Help: "Total working image regenerations (resize and crop applied).",
		}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webx_pipeline_invalidations_total",
			Help: "Total pipeline invalidations by scope.",
		}, []string{"scope"}),
		rearms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webx_pipeline_debounce_rearms_total",
			Help: "Total debounce timer re-arms caused by unsettled edits.",
		}),
		rendersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webx_encoder_renders_total",
			Help: "Total preview renders by encoder and status.",
		}, []string{"encoder", "status"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webx_encoder_render_duration_seconds",
			Help:    "Preview render latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"encoder"}),
		savesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webx_encoder_saves_total",
			Help: "Total final saves by encoder and status.",
		}, []string{"encoder", "status"}),
		encodedBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "webx_encoder_encoded_bytes",
			Help: "Encoded size of the most recent render per encoder.",
		}, []string{"encoder"}),
	}

	registry.MustRegister(
		m.regenerations,
		m.invalidations,
		m.rearms,
		m.rendersTotal,
		m.renderDuration,
		m.savesTotal,
		m.encodedBytes,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Regenerated() {
	if m == nil {
		return
	}
	m.regenerations.Inc()
}

// Invalidated counts an invalidation; all distinguishes resize/crop edits
// from encoder-only changes.
func (m *Metrics) Invalidated(all bool) {
	if m == nil {
		return
	}
	scope := "render"
	if all {
		scope = "all"
	}
	m.invalidations.WithLabelValues(scope).Inc()
}

func (m *Metrics) Rearmed() {
	if m == nil {
		return
	}
	m.rearms.Inc()
}

func (m *Metrics) Rendered(encoder string, d time.Duration, size int64, err error) {
	if m == nil {
		return
	}
	m.rendersTotal.WithLabelValues(encoder, status(err)).Inc()
	m.renderDuration.WithLabelValues(encoder).Observe(d.Seconds())
	if err == nil {
		m.encodedBytes.WithLabelValues(encoder).Set(float64(size))
	}
}

func (m *Metrics) Saved(encoder string, err error) {
	if m == nil {
		return
	}
	m.savesTotal.WithLabelValues(encoder, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
