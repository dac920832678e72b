package filter

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/link-risk-engine/internal/core"
)

// maxParallelScans bounds concurrent link scans within one message
const maxParallelScans = 4

var linkPattern = regexp.MustCompile(`(?i)https?://[^\s<>"'` + "`" + `]+`)

// Scorer scores a URL with an optional message; *core.RiskScoringService satisfies it
type Scorer interface {
	Score(ctx context.Context, rawURL string, message string, skipIntel bool) *core.ScoreResult
}

// ExtractLinks returns the distinct http(s) links in text in order of
// appearance, at most max of them when max > 0
func ExtractLinks(text string, max int) []string {
	seen := make(map[string]struct{})
	links := make([]string, 0)

	for _, match := range linkPattern.FindAllString(text, -1) {
		link := strings.TrimRight(match, ".,;:!?)]}")
		if len(link) <= len("https://") {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
		if max > 0 && len(links) == max {
			break
		}
	}

	return links
}

// LinkScanner scores every link in a message, using the body as the message text
type LinkScanner struct {
	scorer   Scorer
	maxLinks int
	logger   *zap.Logger
}

// NewLinkScanner creates a new link scanner
func NewLinkScanner(scorer Scorer, maxLinks int, logger *zap.Logger) *LinkScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkScanner{
		scorer:   scorer,
		maxLinks: maxLinks,
		logger:   logger,
	}
}

// Scan scores the links found in the message body. The riskiest link is the
// one with the highest score, the earliest one on ties.
func (s *LinkScanner) Scan(ctx context.Context, msg *core.Message, skipIntel bool) *core.LinkReport {
	links := ExtractLinks(msg.Body, s.maxLinks)
	report := &core.LinkReport{Links: make([]core.LinkResult, len(links))}
	if len(links) == 0 {
		return report
	}

	var g errgroup.Group
	g.SetLimit(maxParallelScans)
	for i, link := range links {
		g.Go(func() error {
			report.Links[i] = core.LinkResult{
				URL:    link,
				Result: s.scorer.Score(ctx, link, msg.Body, skipIntel),
			}
			return nil
		})
	}
	_ = g.Wait()

	riskiest := 0
	for i := range report.Links {
		if report.Links[i].Result.Score > report.Links[riskiest].Result.Score {
			riskiest = i
		}
	}
	report.Riskiest = &report.Links[riskiest]

	s.logger.Debug("Scanned message links",
		zap.Int("links", len(links)),
		zap.String("riskiest_url", report.Riskiest.URL),
		zap.Int("riskiest_score", report.Riskiest.Result.Score))

	return report
}
