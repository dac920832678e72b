package config

import (
	"strings"
	"time"
)

// ScoringConfig holds the inclusive lower bounds of the MED and HIGH levels
type ScoringConfig struct {
	HighThreshold   int
	MediumThreshold int
}

// IntelConfig represents the threat intelligence client configuration
type IntelConfig struct {
	Enabled      bool
	Timeout      time.Duration
	RetryBackoff time.Duration
	MaxAttempts  int
	SkipDomains  []string
	Providers    []string
}

// VirusTotalConfig represents the configuration for VirusTotal
type VirusTotalConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
}

// URLhausConfig represents the configuration for URLhaus
type URLhausConfig struct {
	BaseURL string
	AuthKey string
}

// CacheConfig represents the provider result cache configuration
type CacheConfig struct {
	Type             string
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// ClassifierConfig selects the optional message classifier
type ClassifierConfig struct {
	Provider    string
	ModelPath   string
	MaxTextSize int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// HeadersConfig names the headers added to filtered mail
type HeadersConfig struct {
	Score   string
	Level   string
	Verdict string
	Reason  string
}

// PostfixConfig is where filtered mail is relayed to
type PostfixConfig struct {
	Address string
	Port    int
	Enabled bool
}

// ServerConfig represents the mail filter front end configuration
type ServerConfig struct {
	FilterType    string
	ListenAddress string
	BlockHighRisk bool
	MaxLinks      int
	ScanTimeout   time.Duration
	Headers       HeadersConfig
	Postfix       PostfixConfig
	ModifySubject bool
	SubjectPrefix string
}

// MetricsConfig represents the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// GetScoring returns the scoring configuration
func (c *Config) GetScoring() ScoringConfig {
	return ScoringConfig{
		HighThreshold:   c.GetInt("scoring.high_threshold"),
		MediumThreshold: c.GetInt("scoring.medium_threshold"),
	}
}

// GetIntel returns the threat intelligence configuration
func (c *Config) GetIntel() IntelConfig {
	providers := make([]string, 0)
	for _, p := range c.GetStringSlice("intel.providers") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			providers = append(providers, p)
		}
	}

	return IntelConfig{
		Enabled:      c.GetBool("intel.enabled"),
		Timeout:      c.durationOr("intel.timeout", 8*time.Second),
		RetryBackoff: c.durationOr("intel.retry_backoff", time.Second),
		MaxAttempts:  c.GetInt("intel.max_attempts"),
		SkipDomains:  c.GetStringSlice("intel.skip_domains"),
		Providers:    providers,
	}
}

// GetVirusTotal returns the VirusTotal configuration
func (c *Config) GetVirusTotal() VirusTotalConfig {
	return VirusTotalConfig{
		APIKey:            c.GetString("virustotal.api_key"),
		BaseURL:           c.GetString("virustotal.base_url"),
		RequestsPerMinute: c.GetInt("virustotal.requests_per_minute"),
	}
}

// GetURLhaus returns the URLhaus configuration
func (c *Config) GetURLhaus() URLhausConfig {
	return URLhausConfig{
		BaseURL: c.GetString("urlhaus.base_url"),
		AuthKey: c.GetString("urlhaus.auth_key"),
	}
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		TTL:              c.durationOr("cache.ttl", 300*time.Second),
		CleanupFrequency: c.durationOr("cache.cleanup_frequency", 0),
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
	}
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider:    strings.ToLower(c.GetString("classifier.provider")),
		ModelPath:   c.GetString("classifier.model_path"),
		MaxTextSize: c.GetInt("classifier.max_text_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// GetServer returns the mail filter configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:    c.GetString("server.filter_type"),
		ListenAddress: c.GetString("server.listen_address"),
		BlockHighRisk: c.GetBool("server.block_high_risk"),
		MaxLinks:      c.GetInt("server.max_links"),
		ScanTimeout:   c.durationOr("server.scan_timeout", 20*time.Second),
		Headers: HeadersConfig{
			Score:   c.GetString("server.headers.score"),
			Level:   c.GetString("server.headers.level"),
			Verdict: c.GetString("server.headers.verdict"),
			Reason:  c.GetString("server.headers.reason"),
		},
		Postfix: PostfixConfig{
			Address: c.GetString("server.postfix.address"),
			Port:    c.GetInt("server.postfix.port"),
			Enabled: c.GetBool("server.postfix.enabled"),
		},
		ModifySubject: c.GetBool("server.modify_subject"),
		SubjectPrefix: c.GetString("server.subject_prefix"),
	}
}

// GetMetrics returns the metrics endpoint configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}
