package intel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/cache"
	"github.com/mikey/link-risk-engine/internal/core"
)

type mapCache struct {
	mu      sync.Mutex
	entries map[string]core.ProviderResult
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]core.ProviderResult)}
}

func (m *mapCache) Get(ctx context.Context, provider, url string) (*core.ProviderResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[provider+"|"+url]
	if !ok {
		return nil, false
	}
	c := r.Clone()
	return &c, true
}

func (m *mapCache) Set(ctx context.Context, provider, url string, result core.ProviderResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[provider+"|"+url] = result.Clone()
}

func (m *mapCache) Delete(ctx context.Context, provider, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, provider+"|"+url)
	return nil
}

func (m *mapCache) Cleanup(ctx context.Context) error { return nil }

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	hits     int
	misses   int
}

func (f *fakeRecorder) ObserveProviderRequest(provider, outcome string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, provider+":"+outcome)
}

func (f *fakeRecorder) ObserveCacheLookup(provider string, hit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hit {
		f.hits++
	} else {
		f.misses++
	}
}

type skipAll struct{}

func (skipAll) IsWhitelisted(string) bool { return true }

const vtMaliciousBody = `{
  "data": {
    "attributes": {
      "last_analysis_stats": {"malicious": 8, "suspicious": 3, "harmless": 60, "undetected": 9},
      "last_analysis_results": {
        "Zeta": {"category": "malicious", "result": "phishing"},
        "Alpha": {"category": "malicious", "result": "malware"},
        "Beta": {"category": "harmless", "result": "clean"}
      }
    }
  }
}`

func testOptions() Options {
	return Options{Timeout: time.Second, RetryBackoff: 10 * time.Millisecond, MaxAttempts: 2}
}

func newVT(t *testing.T, handler http.HandlerFunc) (*VirusTotal, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewVirusTotal(VirusTotalConfig{APIKey: "vt-key", BaseURL: server.URL}, server.Client(), zap.NewNop()), &hits
}

func newUH(t *testing.T, authKey string, handler http.HandlerFunc) (*URLhaus, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewURLhaus(URLhausConfig{BaseURL: server.URL, AuthKey: authKey}, server.Client(), zap.NewNop()), &hits
}

func TestVirusTotalFound(t *testing.T) {
	const target = "http://evil.example/login"
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v3/urls/"+base64.RawURLEncoding.EncodeToString([]byte(target)), r.URL.Path)
		assert.Equal(t, "vt-key", r.Header.Get("x-apikey"))
		fmt.Fprint(w, vtMaliciousBody)
	})
	client := NewClient([]Provider{vt}, nil, nil, nil, testOptions(), zap.NewNop())

	report := client.Query(context.Background(), target)

	require.Len(t, report.Findings, 1)
	assert.Equal(t, core.SourceIntel, report.Findings[0].Source())
	assert.Equal(t, "VirusTotal", report.Findings[0].Rule())
	assert.Equal(t, 30, report.Findings[0].Points())
	assert.Equal(t, "VirusTotal: 11/80 engines flagged (malware)", report.Findings[0].Detail())

	summary := report.Summary[VirusTotalName]
	assert.True(t, summary.Available)
	assert.True(t, summary.Found)
	assert.Equal(t, 11, summary.Positives)
	assert.Equal(t, 80, summary.Total)
	assert.Equal(t, "malware", summary.ThreatLabel)
	assert.Empty(t, summary.Error)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestVirusTotalStatuses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantError string
	}{
		{"not found", http.StatusNotFound, ""},
		{"server error", http.StatusInternalServerError, "HTTP 500"},
		{"unauthorized", http.StatusUnauthorized, "HTTP 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			client := NewClient([]Provider{vt}, nil, nil, nil, testOptions(), zap.NewNop())

			report := client.Query(context.Background(), "http://example.com")

			assert.Empty(t, report.Findings)
			summary := report.Summary[VirusTotalName]
			assert.True(t, summary.Available)
			assert.False(t, summary.Found)
			assert.Equal(t, 0, summary.ScoreContribution)
			assert.Equal(t, tt.wantError, summary.Error)
			// HTTP statuses are not retried
			assert.EqualValues(t, 1, atomic.LoadInt32(hits))
		})
	}
}

func TestVirusTotalContributionStaircase(t *testing.T) {
	tests := []struct {
		positives int
		expected  int
	}{
		{0, 0}, {1, 0}, {2, 14}, {4, 14}, {5, 22}, {9, 22}, {10, 30}, {70, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, virusTotalContribution(tt.positives), "positives=%d", tt.positives)
	}
}

func TestVirusTotalNotConfigured(t *testing.T) {
	vt := NewVirusTotal(VirusTotalConfig{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	store := newMapCache()
	client := NewClient([]Provider{vt}, store, nil, nil, testOptions(), zap.NewNop())

	report := client.Query(context.Background(), "http://example.com")

	summary := report.Summary[VirusTotalName]
	assert.False(t, summary.Available)
	assert.Equal(t, ErrorNotConfigured, summary.Error)
	assert.Empty(t, store.entries)
}

func TestURLhausFound(t *testing.T) {
	uh, _ := newUH(t, "uh-key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/url/", r.URL.Path)
		assert.Equal(t, "uh-key", r.Header.Get("Auth-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "http://evil.example/payload", r.PostForm.Get("url"))
		fmt.Fprint(w, `{"query_status":"ok","threat":"malware_download",
			"tags":["a","b","c","d","e","f","g","h","i","j","k","l"]}`)
	})
	client := NewClient([]Provider{uh}, nil, nil, nil, testOptions(), zap.NewNop())

	report := client.Query(context.Background(), "evil.example/payload")

	require.Len(t, report.Findings, 1)
	assert.Equal(t, "URLhaus", report.Findings[0].Rule())
	assert.Equal(t, 28, report.Findings[0].Points())
	assert.Equal(t, "URLhaus: malware_download [a, b, c, d, e]", report.Findings[0].Detail())
	assert.Len(t, report.Summary[URLhausName].Tags, 10)
}

func TestURLhausNoResults(t *testing.T) {
	uh, _ := newUH(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Auth-Key"))
		fmt.Fprint(w, `{"query_status":"no_results"}`)
	})
	client := NewClient([]Provider{uh}, nil, nil, nil, testOptions(), zap.NewNop())

	report := client.Query(context.Background(), "http://example.com")

	assert.Empty(t, report.Findings)
	summary := report.Summary[URLhausName]
	assert.True(t, summary.Available)
	assert.False(t, summary.Found)
	assert.Empty(t, summary.Error)
}

func TestFindingsFollowProviderOrder(t *testing.T) {
	vt, _ := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		fmt.Fprint(w, vtMaliciousBody)
	})
	uh, _ := newUH(t, "", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"query_status":"ok","threat":"malware_download"}`)
	})
	client := NewClient([]Provider{vt, uh}, nil, nil, nil, testOptions(), zap.NewNop())

	report := client.Query(context.Background(), "http://evil.example")

	require.Len(t, report.Findings, 2)
	assert.Equal(t, "VirusTotal", report.Findings[0].Rule())
	assert.Equal(t, "URLhaus", report.Findings[1].Rule())
	assert.Equal(t, "URLhaus: malware_download", report.Findings[1].Detail())
}

func TestCacheHit(t *testing.T) {
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, vtMaliciousBody)
	})
	recorder := &fakeRecorder{}
	client := NewClient([]Provider{vt}, newMapCache(), nil, recorder, testOptions(), zap.NewNop())

	first := client.Query(context.Background(), "http://evil.example")
	second := client.Query(context.Background(), "HTTP://EVIL.example")

	assert.False(t, first.Summary[VirusTotalName].Cached)
	assert.True(t, second.Summary[VirusTotalName].Cached)
	assert.Equal(t, first.Findings, second.Findings)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	assert.Equal(t, 1, recorder.hits)
	assert.Equal(t, 1, recorder.misses)
	assert.Equal(t, []string{"virustotal:ok"}, recorder.outcomes)
}

func TestRetryOnMalformedBody(t *testing.T) {
	var calls int32
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{broken`)
			return
		}
		fmt.Fprint(w, vtMaliciousBody)
	})
	recorder := &fakeRecorder{}
	client := NewClient([]Provider{vt}, nil, nil, recorder, testOptions(), zap.NewNop())

	report := client.Query(context.Background(), "http://evil.example")

	assert.EqualValues(t, 2, atomic.LoadInt32(hits))
	assert.True(t, report.Summary[VirusTotalName].Found)
	assert.Empty(t, report.Summary[VirusTotalName].Error)
	assert.Equal(t, []string{"virustotal:failure", "virustotal:ok"}, recorder.outcomes)
}

func TestDoubleTimeoutDegradesGracefully(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	vt, vtHits := newVT(t, slow)
	uh, uhHits := newUH(t, "", slow)
	opts := Options{Timeout: 50 * time.Millisecond, RetryBackoff: 10 * time.Millisecond, MaxAttempts: 2}
	client := NewClient([]Provider{vt, uh}, newMapCache(), nil, nil, opts, zap.NewNop())

	report := client.Query(context.Background(), "http://slow.example")

	assert.Empty(t, report.Findings)
	for _, name := range []string{VirusTotalName, URLhausName} {
		summary := report.Summary[name]
		assert.Equal(t, ErrorTimeout, summary.Error, name)
		assert.Equal(t, 0, summary.ScoreContribution, name)
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(vtHits))
	assert.EqualValues(t, 2, atomic.LoadInt32(uhHits))
}

func TestRetrySkippedWhenDeadlineTooShort(t *testing.T) {
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})
	opts := Options{Timeout: time.Second, RetryBackoff: time.Minute, MaxAttempts: 2}
	client := NewClient([]Provider{vt}, nil, nil, nil, opts, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report := client.Query(ctx, "http://example.com")

	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	assert.Contains(t, report.Summary[VirusTotalName].Error, "failed to parse virustotal response")
}

func TestRetrySkippedFailureIsNotCached(t *testing.T) {
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})
	store := newMapCache()
	opts := Options{Timeout: time.Second, RetryBackoff: 500 * time.Millisecond, MaxAttempts: 2}
	client := NewClient([]Provider{vt}, store, nil, nil, opts, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	report := client.Query(ctx, "http://example.com")

	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	assert.NotEmpty(t, report.Summary[VirusTotalName].Error)
	assert.Empty(t, store.entries)
}

func TestShortCallerDeadlineDoesNotFailOtherCallers(t *testing.T) {
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
		fmt.Fprint(w, vtMaliciousBody)
	})
	client := NewClient([]Provider{vt}, newMapCache(), nil, nil, testOptions(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	hurried := client.Query(ctx, "http://evil.example")

	assert.Equal(t, ErrorTimeout, hurried.Summary[VirusTotalName].Error)
	assert.False(t, hurried.Summary[VirusTotalName].Cached)

	patient := client.Query(context.Background(), "http://evil.example")

	summary := patient.Summary[VirusTotalName]
	assert.Empty(t, summary.Error)
	assert.True(t, summary.Found)
	assert.Equal(t, 30, summary.ScoreContribution)
	require.Len(t, patient.Findings, 1)

	again := client.Query(context.Background(), "http://evil.example")

	assert.True(t, again.Summary[VirusTotalName].Cached)
	assert.Empty(t, again.Summary[VirusTotalName].Error)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestExpiredEntryTriggersFreshLookup(t *testing.T) {
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, vtMaliciousBody)
	})
	store := cache.NewMemoryCache(100*time.Millisecond, zap.NewNop(), 0)
	client := NewClient([]Provider{vt}, store, nil, nil, testOptions(), zap.NewNop())

	client.Query(context.Background(), "http://evil.example")
	fresh := client.Query(context.Background(), "http://evil.example")
	require.True(t, fresh.Summary[VirusTotalName].Cached)

	time.Sleep(150 * time.Millisecond)
	expired := client.Query(context.Background(), "http://evil.example")

	assert.False(t, expired.Summary[VirusTotalName].Cached)
	assert.True(t, expired.Summary[VirusTotalName].Found)
	assert.EqualValues(t, 2, atomic.LoadInt32(hits))
}

func TestSkipListedHost(t *testing.T) {
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, vtMaliciousBody)
	})
	client := NewClient([]Provider{vt}, newMapCache(), skipAll{}, nil, testOptions(), zap.NewNop())

	report := client.Query(context.Background(), "http://intranet.example")

	assert.Empty(t, report.Findings)
	assert.Equal(t, ErrorSkipped, report.Summary[VirusTotalName].Error)
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestRateLimitedResultsAreNotCached(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, vtMaliciousBody)
	}))
	defer server.Close()
	vt := NewVirusTotal(VirusTotalConfig{APIKey: "k", BaseURL: server.URL, RequestsPerMinute: 1}, server.Client(), nil)
	store := newMapCache()
	client := NewClient([]Provider{vt}, store, nil, nil, testOptions(), zap.NewNop())

	client.Query(context.Background(), "http://one.example")
	report := client.Query(context.Background(), "http://two.example")

	assert.Equal(t, ErrorRateLimited, report.Summary[VirusTotalName].Error)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Len(t, store.entries, 1)
}

func TestConcurrentMissesAreCoalesced(t *testing.T) {
	release := make(chan struct{})
	vt, hits := newVT(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, vtMaliciousBody)
	})
	client := NewClient([]Provider{vt}, newMapCache(), nil, nil, testOptions(), zap.NewNop())

	var wg sync.WaitGroup
	reports := make([]core.IntelReport, 5)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i] = client.Query(context.Background(), "http://evil.example")
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(hits))
	for _, r := range reports {
		assert.Equal(t, 30, r.Summary[VirusTotalName].ScoreContribution)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{" HTTP://Example.COM/Path?q=1 ", "http://example.com/Path?q=1"},
		{"example.com:8080", "http://example.com:8080"},
		{"https://bücher.de/x", "https://xn--bcher-kva.de/x"},
		{"https://example.com", "https://example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeURL(tt.in), tt.in)
	}
}

func TestDescribeErrorTruncates(t *testing.T) {
	long := fmt.Errorf("%s", string(make([]byte, 300)))
	assert.Len(t, describeError(long), maxErrorLength)
	assert.Equal(t, ErrorTimeout, describeError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
}
