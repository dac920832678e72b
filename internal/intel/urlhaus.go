package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/core"
)

const (
	// URLhausName is the provider key of URLhaus
	URLhausName = "urlhaus"

	// DefaultURLhausURL is the public abuse.ch URLhaus API
	DefaultURLhausURL = "https://urlhaus-api.abuse.ch"

	urlhausContribution = 28
	urlhausMaxTags      = 10
	urlhausListedTags   = 5
)

// URLhausConfig configures the URLhaus provider
type URLhausConfig struct {
	BaseURL string
	AuthKey string
}

// URLhaus looks URLs up in the abuse.ch URLhaus database
type URLhaus struct {
	baseURL    string
	authKey    string
	httpClient *http.Client
	logger     *zap.Logger
}

type urlhausResponse struct {
	QueryStatus string   `json:"query_status"`
	Threat      string   `json:"threat"`
	Tags        []string `json:"tags"`
}

// NewURLhaus creates a new URLhaus provider
func NewURLhaus(cfg URLhausConfig, httpClient *http.Client, logger *zap.Logger) *URLhaus {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultURLhausURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &URLhaus{
		baseURL:    baseURL,
		authKey:    strings.TrimSpace(cfg.AuthKey),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name returns the provider key
func (u *URLhaus) Name() string { return URLhausName }

// Label returns the finding rule name
func (u *URLhaus) Label() string { return "URLhaus" }

// Configured is always true, the public API works without a key
func (u *URLhaus) Configured() bool { return true }

// Lookup queries the URL endpoint
func (u *URLhaus) Lookup(ctx context.Context, rawURL string) (core.ProviderResult, error) {
	result := core.ProviderResult{Provider: URLhausName}

	form := url.Values{"url": {rawURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/v1/url/", strings.NewReader(form.Encode()))
	if err != nil {
		return result, fmt.Errorf("failed to build urlhaus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if u.authKey != "" {
		req.Header.Set("Auth-Key", u.authKey)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("urlhaus request failed: %w", err)
	}
	body, err := readBody(resp)
	result.Available = true
	if err != nil {
		return result, fmt.Errorf("failed to read urlhaus response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return result, nil
	}

	var parsed urlhausResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return result, fmt.Errorf("failed to parse urlhaus response: %w", err)
	}

	if parsed.QueryStatus != "ok" {
		u.logger.Debug("URL not listed in URLhaus",
			zap.String("url", rawURL),
			zap.String("query_status", parsed.QueryStatus))
		return result, nil
	}

	result.Found = true
	result.Threat = parsed.Threat
	if result.Threat == "" {
		result.Threat = "unknown"
	}
	tags := parsed.Tags
	if len(tags) > urlhausMaxTags {
		tags = tags[:urlhausMaxTags]
	}
	result.Tags = tags
	result.ScoreContribution = urlhausContribution

	return result, nil
}

// Describe builds the finding detail
func (u *URLhaus) Describe(result core.ProviderResult) string {
	threat := result.Threat
	if threat == "" {
		threat = "malicious"
	}
	detail := "URLhaus: " + threat
	if len(result.Tags) > 0 {
		tags := result.Tags
		if len(tags) > urlhausListedTags {
			tags = tags[:urlhausListedTags]
		}
		detail += " [" + strings.Join(tags, ", ") + "]"
	}
	return detail
}
