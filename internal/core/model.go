package core

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// MaxDetailLength is the display length a Finding detail is truncated to
const MaxDetailLength = 200

// Source identifies which analyzer produced a Finding
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceIntel     Source = "intel"
	SourceNLP       Source = "nlp"
	SourceNLPML     Source = "nlp_ml"
)

// Finding is one scored signal contributing to a risk score.
// Findings are immutable and can only be built through the
// source-specific constructors below.
type Finding struct {
	source Source
	rule   string
	points int
	detail string
}

// HeuristicFinding creates a Finding produced by the heuristic URL analyzer
func HeuristicFinding(rule string, points int, detail string) Finding {
	return newFinding(SourceHeuristic, rule, points, detail)
}

// IntelFinding creates a Finding produced by a threat intelligence provider
func IntelFinding(rule string, points int, detail string) Finding {
	return newFinding(SourceIntel, rule, points, detail)
}

// NLPFinding creates a Finding produced by the text pattern analyzer
func NLPFinding(rule string, points int, detail string) Finding {
	return newFinding(SourceNLP, rule, points, detail)
}

// MLFinding creates a Finding produced by the optional text classifier
func MLFinding(rule string, points int, detail string) Finding {
	return newFinding(SourceNLPML, rule, points, detail)
}

func newFinding(source Source, rule string, points int, detail string) Finding {
	if points < 0 {
		points = 0
	}
	return Finding{
		source: source,
		rule:   rule,
		points: points,
		detail: truncateRunes(detail, MaxDetailLength),
	}
}

// Source returns the analyzer that produced the finding
func (f Finding) Source() Source { return f.source }

// Rule returns the short human label of the rule
func (f Finding) Rule() string { return f.rule }

// Points returns the non-negative score contribution
func (f Finding) Points() int { return f.points }

// Detail returns the explanation shown to users
func (f Finding) Detail() string { return f.detail }

type findingJSON struct {
	Source Source `json:"source"`
	Rule   string `json:"rule"`
	Points int    `json:"points"`
	Detail string `json:"detail"`
}

// MarshalJSON encodes the finding for API consumers
func (f Finding) MarshalJSON() ([]byte, error) {
	return json.Marshal(findingJSON{
		Source: f.source,
		Rule:   f.rule,
		Points: f.points,
		Detail: f.detail,
	})
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// ProviderResult is one threat intelligence provider's answer for a URL
type ProviderResult struct {
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
	Found     bool   `json:"found"`

	// VirusTotal
	Positives   int    `json:"positives,omitempty"`
	Total       int    `json:"total,omitempty"`
	ThreatLabel string `json:"threat_label,omitempty"`

	// URLhaus
	Threat string   `json:"threat,omitempty"`
	Tags   []string `json:"tags,omitempty"`

	ScoreContribution int    `json:"score_contribution"`
	Error             string `json:"error,omitempty"`

	// Cached is only set on copies served from the cache
	Cached bool `json:"cached,omitempty"`
}

// Clone returns a deep copy of the result
func (r ProviderResult) Clone() ProviderResult {
	c := r
	if r.Tags != nil {
		c.Tags = make([]string, len(r.Tags))
		copy(c.Tags, r.Tags)
	}
	return c
}

// IntelReport is the combined answer of all configured providers
type IntelReport struct {
	Findings []Finding
	Summary  map[string]ProviderResult
}

// ThreatLevel is the coarse bucket derived from a score
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "LOW"
	ThreatMedium ThreatLevel = "MED"
	ThreatHigh   ThreatLevel = "HIGH"
)

// Verdict is the user-facing label, one-to-one with ThreatLevel
type Verdict string

const (
	VerdictSafe       Verdict = "safe"
	VerdictSuspicious Verdict = "suspicious"
	VerdictScam       Verdict = "scam"
)

// Verdict returns the verdict mapped to the threat level
func (l ThreatLevel) Verdict() Verdict {
	switch l {
	case ThreatHigh:
		return VerdictScam
	case ThreatMedium:
		return VerdictSuspicious
	default:
		return VerdictSafe
	}
}

// Thresholds holds the inclusive lower bounds of the MED and HIGH buckets
type Thresholds struct {
	High   int
	Medium int
}

// DefaultThresholds returns the HIGH >= 55, MED >= 25 scheme
func DefaultThresholds() Thresholds {
	return Thresholds{High: 55, Medium: 25}
}

// Level maps a score to its threat level
func (t Thresholds) Level(score int) ThreatLevel {
	switch {
	case score >= t.High:
		return ThreatHigh
	case score >= t.Medium:
		return ThreatMedium
	default:
		return ThreatLow
	}
}

// NoRedFlagsReason is the reason reported when nothing was found
const NoRedFlagsReason = "No red flags"

// ScoreResult is the engine's assessment of a URL and optional message
type ScoreResult struct {
	ProcessingID string                    `json:"processing_id"`
	Score        int                       `json:"score"`
	ThreatLevel  ThreatLevel               `json:"threat_level"`
	Verdict      Verdict                   `json:"verdict"`
	Breakdown    []Finding                 `json:"breakdown"`
	IntelSummary map[string]ProviderResult `json:"intel_summary"`
	Reason       string                    `json:"reason"`
	AnalyzedAt   time.Time                 `json:"analyzed_at"`
}

// TextAnalysisResult is the outcome of analyzing a message on its own
type TextAnalysisResult struct {
	Score        int       `json:"score"`
	Label        string    `json:"label"`
	Breakdown    []Finding `json:"breakdown"`
	Triggers     []string  `json:"triggers"`
	MLLabel      *string   `json:"ml_label"`
	MLConfidence *float64  `json:"ml_confidence"`
}

// Message is a mail message reduced to what the link scanners need
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
	Headers map[string][]string
}

// LinkResult is the score of one link found in a message
type LinkResult struct {
	URL    string       `json:"url"`
	Result *ScoreResult `json:"result"`
}

// LinkReport is the outcome of scanning every link in a message.
// Riskiest is nil when the message has no links.
type LinkReport struct {
	Links    []LinkResult `json:"links"`
	Riskiest *LinkResult  `json:"riskiest,omitempty"`
}
