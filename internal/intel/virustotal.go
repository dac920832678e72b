package intel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/link-risk-engine/internal/core"
)

const (
	// VirusTotalName is the provider key of VirusTotal
	VirusTotalName = "virustotal"

	// DefaultVirusTotalURL is the public VirusTotal API
	DefaultVirusTotalURL = "https://www.virustotal.com"
)

// VirusTotalConfig configures the VirusTotal provider
type VirusTotalConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
}

// VirusTotal looks URLs up in the VirusTotal v3 API
type VirusTotal struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

type vtEngineResult struct {
	Category string `json:"category"`
	Result   string `json:"result"`
}

type vtResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats   map[string]int            `json:"last_analysis_stats"`
			LastAnalysisResults map[string]vtEngineResult `json:"last_analysis_results"`
		} `json:"attributes"`
	} `json:"data"`
}

// NewVirusTotal creates a new VirusTotal provider. A RequestsPerMinute of
// zero disables the local rate limit.
func NewVirusTotal(cfg VirusTotalConfig, httpClient *http.Client, logger *zap.Logger) *VirusTotal {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultVirusTotalURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &VirusTotal{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// Name returns the provider key
func (v *VirusTotal) Name() string { return VirusTotalName }

// Label returns the finding rule name
func (v *VirusTotal) Label() string { return "VirusTotal" }

// Configured reports whether an API key is set
func (v *VirusTotal) Configured() bool { return v.apiKey != "" }

// Lookup fetches the URL report
func (v *VirusTotal) Lookup(ctx context.Context, url string) (core.ProviderResult, error) {
	result := core.ProviderResult{Provider: VirusTotalName}

	if v.limiter != nil && !v.limiter.Allow() {
		return result, ErrRateLimited
	}

	id := base64.RawURLEncoding.EncodeToString([]byte(url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/v3/urls/"+id, nil)
	if err != nil {
		return result, fmt.Errorf("failed to build virustotal request: %w", err)
	}
	req.Header.Set("x-apikey", v.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("virustotal request failed: %w", err)
	}
	body, err := readBody(resp)
	result.Available = true
	if err != nil {
		return result, fmt.Errorf("failed to read virustotal response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return result, nil
	default:
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result, nil
	}

	var parsed vtResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return result, fmt.Errorf("failed to parse virustotal response: %w", err)
	}

	attrs := parsed.Data.Attributes
	malicious := attrs.LastAnalysisStats["malicious"]
	total := 0
	for _, n := range attrs.LastAnalysisStats {
		total += n
	}

	result.Found = true
	result.Positives = malicious + attrs.LastAnalysisStats["suspicious"]
	result.Total = total
	if malicious > 0 {
		result.ThreatLabel = firstMaliciousLabel(attrs.LastAnalysisResults)
	}
	result.ScoreContribution = virusTotalContribution(result.Positives)

	v.logger.Debug("VirusTotal lookup completed",
		zap.String("url", url),
		zap.Int("positives", result.Positives),
		zap.Int("total", result.Total))

	return result, nil
}

// Describe builds the finding detail
func (v *VirusTotal) Describe(result core.ProviderResult) string {
	detail := fmt.Sprintf("VirusTotal: %d/%d engines flagged", result.Positives, result.Total)
	if result.ThreatLabel != "" {
		detail += " (" + result.ThreatLabel + ")"
	}
	return detail
}

// firstMaliciousLabel returns the verdict of the first engine, by name, that
// flagged the URL as malicious
func firstMaliciousLabel(results map[string]vtEngineResult) string {
	engines := make([]string, 0, len(results))
	for engine := range results {
		engines = append(engines, engine)
	}
	sort.Strings(engines)

	for _, engine := range engines {
		r := results[engine]
		if r.Category == "malicious" && r.Result != "" {
			return r.Result
		}
	}
	return ""
}

func virusTotalContribution(positives int) int {
	switch {
	case positives >= 10:
		return 30
	case positives >= 5:
		return 22
	case positives >= 2:
		return 14
	default:
		return 0
	}
}
