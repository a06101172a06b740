package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector holds the engine's prometheus instruments on a private
// registry so tests can build isolated collectors.
type MetricsCollector struct {
	registry *prometheus.Registry

	ScansTotal      *prometheus.CounterVec
	ScanDuration    prometheus.Histogram
	AdapterDuration *prometheus.HistogramVec
	AdapterFailures *prometheus.CounterVec
	FindingsTotal   *prometheus.GaugeVec
	DedupMerged     prometheus.Counter
	ToolCalls       *prometheus.CounterVec
}

func NewMetricsCollector(enableRuntimeMetrics bool) *MetricsCollector {
	reg := prometheus.NewRegistry()
	if enableRuntimeMetrics {
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		_ = reg.Register(collectors.NewGoCollector())
	}

	m := &MetricsCollector{
		registry: reg,
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vulnlynx_scans_total",
			Help: "Completed orchestration runs by outcome.",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vulnlynx_scan_duration_seconds",
			Help:    "Wall-clock duration of full orchestration runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vulnlynx_adapter_duration_seconds",
			Help:    "Per-adapter subprocess duration.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"scanner"}),
		AdapterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vulnlynx_adapter_failures_total",
			Help: "Adapter failures by scanner and reason.",
		}, []string{"scanner", "reason"}),
		FindingsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vulnlynx_findings",
			Help: "Deduplicated findings in the latest scan by severity.",
		}, []string{"severity"}),
		DedupMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vulnlynx_dedup_merged_total",
			Help: "Raw findings merged away by fingerprint deduplication.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vulnlynx_tool_calls_total",
			Help: "Capability server tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
	}

	reg.MustRegister(m.ScansTotal, m.ScanDuration, m.AdapterDuration,
		m.AdapterFailures, m.FindingsTotal, m.DedupMerged, m.ToolCalls)

	return m
}

func (m *MetricsCollector) ObserveAdapter(scanner string, d time.Duration) {
	m.AdapterDuration.WithLabelValues(scanner).Observe(d.Seconds())
}

func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}
