package textscan

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/mikey/link-risk-engine/internal/core"
)

// Rule names
const (
	RuleUrgency      = "Urgency language"
	RuleCallToAction = "Call-to-action"
	RuleThreat       = "Threat indicators"
	RuleReward       = "Reward / bait"
	RulePressure     = "Pressure tactics"
	RuleCaps         = "Excessive caps"
	RulePunctuation  = "Excessive punctuation"
	RuleMLClassifier = "ML classifier"
)

const (
	capsPoints        = 5
	capsMinWords      = 3
	capsMinLength     = 3
	punctuationPoints = 3
	punctuationMin    = 3

	mlPoints        = 10
	mlMinConfidence = 0.7
	mlScamLabel     = "scam"

	scamScore       = 50
	suspiciousScore = 20
)

// category is a keyword list scored as min(hits*multiplier, cap)
type category struct {
	rule       string
	keywords   []string
	multiplier int
	cap        int
	listed     int
}

var categories = []category{
	{
		rule: RuleUrgency,
		keywords: []string{
			"urgent", "immediately", "now", "expire", "hurry", "limited time",
			"act fast", "don't wait", "asap", "deadline", "right away",
		},
		multiplier: 6, cap: 12, listed: 4,
	},
	{
		rule: RuleCallToAction,
		keywords: []string{
			"click", "verify", "confirm", "update", "login", "sign in",
			"tap here", "open", "download", "install", "activate",
		},
		multiplier: 5, cap: 10, listed: 4,
	},
	{
		rule: RuleThreat,
		keywords: []string{
			"account", "bank", "payment", "credit card", "password", "ssn",
			"social security", "identity", "suspended", "locked", "unauthorized",
		},
		multiplier: 6, cap: 12, listed: 4,
	},
	{
		rule: RuleReward,
		keywords: []string{
			"prize", "winner", "congratulations", "free", "gift", "bonus",
			"reward", "jackpot", "lottery", "cash", "million",
		},
		multiplier: 4, cap: 12, listed: 4,
	},
	{
		rule: RulePressure,
		keywords: []string{
			"or else", "will be closed", "within 24", "within 48",
			"last chance", "final notice", "legal action", "authorities",
		},
		multiplier: 5, cap: 10, listed: 3,
	},
}

// Analyzer scores free text against scam keyword categories and, when a
// classifier is available, augments the score with its prediction
type Analyzer struct {
	classifier core.Classifier
	logger     *zap.Logger
}

// NewAnalyzer creates a new text analyzer. classifier may be nil.
func NewAnalyzer(classifier core.Classifier, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		classifier: classifier,
		logger:     logger,
	}
}

// Analyze scores a message
func (a *Analyzer) Analyze(ctx context.Context, text string) core.TextAnalysisResult {
	breakdown := make([]core.Finding, 0, len(categories)+3)
	triggers := make([]string, 0)

	// Casers are stateful and must not be shared between goroutines
	folded := cases.Fold().String(text)

	for _, c := range categories {
		hits := matchAll(folded, c.keywords)
		if len(hits) == 0 {
			continue
		}
		listed := hits
		if len(listed) > c.listed {
			listed = listed[:c.listed]
		}
		breakdown = append(breakdown, core.NLPFinding(c.rule, min(len(hits)*c.multiplier, c.cap),
			strings.Join(listed, ", ")))
		triggers = append(triggers, hits...)
	}

	if caps := countCapsWords(text); caps >= capsMinWords {
		breakdown = append(breakdown, core.NLPFinding(RuleCaps, capsPoints,
			fmt.Sprintf("%d ALL-CAPS words", caps)))
	}

	if bangs := strings.Count(text, "!"); bangs >= punctuationMin {
		breakdown = append(breakdown, core.NLPFinding(RulePunctuation, punctuationPoints,
			fmt.Sprintf("%d exclamation marks", bangs)))
	}

	score := core.SumPoints(breakdown)

	result := core.TextAnalysisResult{
		Breakdown: breakdown,
		Triggers:  triggers,
	}

	if a.classifier != nil && a.classifier.Available() {
		label, confidence, err := a.classifier.Predict(ctx, text)
		if err != nil {
			a.logger.Warn("Classifier prediction failed", zap.Error(err))
		} else {
			rounded := math.Round(confidence*1000) / 1000
			result.MLLabel = &label
			result.MLConfidence = &rounded

			if label == mlScamLabel && confidence > mlMinConfidence {
				result.Breakdown = append(result.Breakdown, core.MLFinding(RuleMLClassifier, mlPoints,
					fmt.Sprintf("scam (%.0f%%)", confidence*100)))
				score = min(score+mlPoints, core.MaxScore)
			}
		}
	}

	result.Score = score
	result.Label = Label(score)
	return result
}

// Label maps a text score to safe, suspicious or scam
func Label(score int) string {
	switch {
	case score >= scamScore:
		return string(core.VerdictScam)
	case score >= suspiciousScore:
		return string(core.VerdictSuspicious)
	default:
		return string(core.VerdictSafe)
	}
}

func matchAll(text string, keywords []string) []string {
	var hits []string
	for _, k := range keywords {
		if strings.Contains(text, k) {
			hits = append(hits, k)
		}
	}
	return hits
}

func countCapsWords(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) >= capsMinLength && isUpper(w) {
			n++
		}
	}
	return n
}

// isUpper reports whether w has at least one cased letter and all cased
// letters are upper case
func isUpper(w string) bool {
	cased := false
	for _, r := range w {
		switch {
		case unicode.IsLower(r), unicode.IsTitle(r):
			return false
		case unicode.IsUpper(r):
			cased = true
		}
	}
	return cased
}
