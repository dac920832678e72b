package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/link-risk-engine/internal/core"
)

func TestProviderMetrics(t *testing.T) {
	m := New()

	m.ObserveProviderRequest("virustotal", "ok", 120*time.Millisecond)
	m.ObserveProviderRequest("virustotal", "ok", 80*time.Millisecond)
	m.ObserveProviderRequest("urlhaus", "failure", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("virustotal", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("urlhaus", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.providerLatency))
}

func TestCacheMetrics(t *testing.T) {
	m := New()

	m.ObserveCacheLookup("urlhaus", true)
	m.ObserveCacheLookup("urlhaus", false)
	m.ObserveCacheLookup("urlhaus", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("urlhaus", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("urlhaus", "miss")))
}

func TestScanMetrics(t *testing.T) {
	m := New()

	m.ObserveScan(&core.ScoreResult{Score: 60, ThreatLevel: core.ThreatHigh})
	m.ObserveScan(&core.ScoreResult{Score: 0, ThreatLevel: core.ThreatLow})
	m.ObserveScan(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("LOW")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveProviderRequest("virustotal", "ok", time.Second)
		m.ObserveCacheLookup("virustotal", true)
		m.ObserveScan(&core.ScoreResult{})
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveScan(&core.ScoreResult{Score: 30, ThreatLevel: core.ThreatMedium})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `risk_engine_scans_total{threat_level="MED"} 1`)
	assert.Contains(t, string(body), "risk_engine_scan_score_bucket")
}
