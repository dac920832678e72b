package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikey/link-risk-engine/internal/core"
)

const namespace = "risk_engine"

// Metrics collects provider, cache and scan metrics. A nil *Metrics is a no-op.
type Metrics struct {
	registry         *prometheus.Registry
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	scans            *prometheus.CounterVec
	scanScores       prometheus.Histogram
}

// New registers the metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		providerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Threat intelligence provider lookups by outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Threat intelligence provider lookup latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"provider"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Provider result cache lookups by result.",
		}, []string{"provider", "result"}),
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scored URLs by threat level.",
		}, []string{"threat_level"}),
		scanScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_score",
			Help:      "Distribution of final risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

// ObserveProviderRequest records one provider lookup
func (m *Metrics) ObserveProviderRequest(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveCacheLookup records a cache hit or miss
func (m *Metrics) ObserveCacheLookup(provider string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(provider, result).Inc()
}

// ObserveScan records a completed scan
func (m *Metrics) ObserveScan(result *core.ScoreResult) {
	if m == nil || result == nil {
		return
	}
	m.scans.WithLabelValues(string(result.ThreatLevel)).Inc()
	m.scanScores.Observe(float64(result.Score))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
