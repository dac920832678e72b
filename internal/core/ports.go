package core

import (
	"context"
)

// URLAnalyzer inspects the lexical structure of a URL
type URLAnalyzer interface {
	// Analyze returns the findings for a URL; it never fails
	Analyze(rawURL string) []Finding
}

// TextAnalyzer inspects free text for scam patterns
type TextAnalyzer interface {
	// Analyze returns the text analysis for a message
	Analyze(ctx context.Context, text string) TextAnalysisResult
}

// IntelClient queries threat intelligence providers for a URL
type IntelClient interface {
	// Query returns findings and a per-provider summary; provider failures
	// are reported in the summary, never as errors
	Query(ctx context.Context, rawURL string) IntelReport
}

// Classifier is an optional text classifier used to augment text analysis
type Classifier interface {
	// Available reports whether the classifier can serve predictions
	Available() bool

	// Predict returns the predicted label and its confidence in [0, 1]
	Predict(ctx context.Context, text string) (string, float64, error)
}

// CacheRepository stores provider results keyed by provider and normalized URL
type CacheRepository interface {
	// Get returns a copy of a cached result younger than the TTL
	Get(ctx context.Context, provider, url string) (*ProviderResult, bool)

	// Set stores a result
	Set(ctx context.Context, provider, url string, result ProviderResult)

	// Delete removes a cached result
	Delete(ctx context.Context, provider, url string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// ScanRecorder receives scan outcomes for observability
type ScanRecorder interface {
	ObserveScan(result *ScoreResult)
}
