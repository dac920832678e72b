package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxScore is the hard cap of a risk score
const MaxScore = 100

// RiskScoringService combines heuristic, threat intelligence and text
// analysis into a single explainable score
type RiskScoringService struct {
	urlAnalyzer  URLAnalyzer
	textAnalyzer TextAnalyzer
	intel        IntelClient
	recorder     ScanRecorder
	logger       *zap.Logger
	thresholds   Thresholds
}

// NewRiskScoringService creates a new risk scoring service.
// intel and recorder may be nil.
func NewRiskScoringService(
	urlAnalyzer URLAnalyzer,
	textAnalyzer TextAnalyzer,
	intel IntelClient,
	recorder ScanRecorder,
	logger *zap.Logger,
	thresholds Thresholds,
) *RiskScoringService {
	if urlAnalyzer == nil || textAnalyzer == nil || logger == nil {
		panic("core: NewRiskScoringService requires a URL analyzer, a text analyzer and a logger")
	}

	return &RiskScoringService{
		urlAnalyzer:  urlAnalyzer,
		textAnalyzer: textAnalyzer,
		intel:        intel,
		recorder:     recorder,
		logger:       logger,
		thresholds:   thresholds,
	}
}

// Thresholds returns the thresholds used to map scores to threat levels
func (s *RiskScoringService) Thresholds() Thresholds {
	return s.thresholds
}

// Score assesses a URL and an optional message. It always returns a result:
// failures of intel providers or the text analyzer only reduce the signal.
func (s *RiskScoringService) Score(ctx context.Context, rawURL string, message string, skipIntel bool) *ScoreResult {
	startTime := time.Now()
	breakdown := make([]Finding, 0, 8)
	intelSummary := make(map[string]ProviderResult)

	// Heuristics always run
	breakdown = append(breakdown, s.urlAnalyzer.Analyze(rawURL)...)

	if !skipIntel && s.intel != nil {
		if report, ok := s.queryIntel(ctx, rawURL); ok {
			breakdown = append(breakdown, report.Findings...)
			for name, result := range report.Summary {
				intelSummary[name] = result
			}
		}
	}

	if strings.TrimSpace(message) != "" {
		if text, ok := s.analyzeText(ctx, message); ok {
			breakdown = append(breakdown, text.Breakdown...)
		}
	}

	score := SumPoints(breakdown)
	level := s.thresholds.Level(score)

	result := &ScoreResult{
		ProcessingID: uuid.NewString(),
		Score:        score,
		ThreatLevel:  level,
		Verdict:      level.Verdict(),
		Breakdown:    breakdown,
		IntelSummary: intelSummary,
		Reason:       BuildReason(breakdown),
		AnalyzedAt:   time.Now(),
	}

	s.logger.Info("Scored URL",
		zap.String("processing_id", result.ProcessingID),
		zap.String("url", rawURL),
		zap.Int("score", result.Score),
		zap.String("threat_level", string(result.ThreatLevel)),
		zap.Int("findings", len(breakdown)),
		zap.Bool("skip_intel", skipIntel),
		zap.Duration("duration", time.Since(startTime)))

	if s.recorder != nil {
		s.recorder.ObserveScan(result)
	}

	return result
}

// AnalyzeMessage runs the text pattern analyzer on its own
func (s *RiskScoringService) AnalyzeMessage(ctx context.Context, text string) TextAnalysisResult {
	return s.textAnalyzer.Analyze(ctx, text)
}

// queryIntel calls the intel client and recovers from unexpected failures
func (s *RiskScoringService) queryIntel(ctx context.Context, rawURL string) (report IntelReport, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Threat intelligence lookup failed, continuing without intel",
				zap.Any("panic", r),
				zap.String("url", rawURL))
			ok = false
		}
	}()

	return s.intel.Query(ctx, rawURL), true
}

// analyzeText calls the text analyzer and recovers from unexpected failures
func (s *RiskScoringService) analyzeText(ctx context.Context, message string) (result TextAnalysisResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Message analysis failed, continuing without it", zap.Any("panic", r))
			ok = false
		}
	}()

	return s.textAnalyzer.Analyze(ctx, message), true
}

// SumPoints adds up finding points, capped at MaxScore
func SumPoints(findings []Finding) int {
	total := 0
	for _, f := range findings {
		total += f.Points()
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}

// BuildReason joins all non-empty finding details
func BuildReason(findings []Finding) string {
	details := make([]string, 0, len(findings))
	for _, f := range findings {
		if f.Detail() != "" {
			details = append(details, f.Detail())
		}
	}
	if len(details) == 0 {
		return NoRedFlagsReason
	}
	return strings.Join(details, "; ")
}
