package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/core"
)

// CliFilter implements a command-line interface for link risk scanning
type CliFilter struct {
	service    *core.RiskScoringService
	scanner    *LinkScanner
	logger     *zap.Logger
	out        io.Writer
	verbose    bool
	jsonOutput bool
}

// NewCliFilter creates a new CLI filter writing to stdout
func NewCliFilter(service *core.RiskScoringService, scanner *LinkScanner, logger *zap.Logger, verbose, jsonOutput bool) *CliFilter {
	return NewCliFilterWithWriter(service, scanner, logger, verbose, jsonOutput, os.Stdout)
}

// NewCliFilterWithWriter creates a new CLI filter writing to out
func NewCliFilterWithWriter(service *core.RiskScoringService, scanner *LinkScanner, logger *zap.Logger, verbose, jsonOutput bool, out io.Writer) *CliFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CliFilter{
		service:    service,
		scanner:    scanner,
		logger:     logger,
		out:        out,
		verbose:    verbose,
		jsonOutput: jsonOutput,
	}
}

// ScanURL scores a URL with an optional message and displays the result
func (f *CliFilter) ScanURL(ctx context.Context, rawURL, message string, skipIntel bool) (*core.ScoreResult, error) {
	f.logger.Debug("Scanning URL", zap.String("url", rawURL), zap.Bool("skip_intel", skipIntel))

	startTime := time.Now()
	result := f.service.Score(ctx, rawURL, message, skipIntel)
	duration := time.Since(startTime)

	if f.jsonOutput {
		return result, f.writeJSON(result)
	}

	fmt.Fprintf(f.out, "\n=== Scan Summary ===\n")
	fmt.Fprintf(f.out, "URL: %s\n", rawURL)
	if message != "" {
		fmt.Fprintf(f.out, "Message length: %d bytes\n", len(message))
	}
	f.printResult(result)
	fmt.Fprintf(f.out, "Processing time: %v\n", duration)

	return result, nil
}

// AnalyzeText runs the message analyzer on its own and displays the result
func (f *CliFilter) AnalyzeText(ctx context.Context, text string) (core.TextAnalysisResult, error) {
	result := f.service.AnalyzeMessage(ctx, text)

	if f.jsonOutput {
		return result, f.writeJSON(result)
	}

	fmt.Fprintf(f.out, "\n=== Message Analysis ===\n")
	fmt.Fprintf(f.out, "Score: %d/100\n", result.Score)
	fmt.Fprintf(f.out, "Label: %s\n", result.Label)
	if result.MLLabel != nil && result.MLConfidence != nil {
		fmt.Fprintf(f.out, "Classifier: %s (%.3f)\n", *result.MLLabel, *result.MLConfidence)
	}
	if len(result.Triggers) > 0 {
		fmt.Fprintf(f.out, "Triggers: %s\n", strings.Join(result.Triggers, ", "))
	}
	f.printBreakdown(result.Breakdown)

	return result, nil
}

// ScanMessage scores every link in a message and displays the riskiest
func (f *CliFilter) ScanMessage(ctx context.Context, msg *core.Message) (*core.LinkReport, error) {
	report := f.scanner.Scan(ctx, msg, false)

	if f.jsonOutput {
		return report, f.writeJSON(report)
	}

	fmt.Fprintf(f.out, "\n=== Message Links ===\n")
	if report.Riskiest == nil {
		fmt.Fprintf(f.out, "No links found\n")
		return report, nil
	}
	for _, link := range report.Links {
		fmt.Fprintf(f.out, "%3d  %-4s  %s\n", link.Result.Score, link.Result.ThreatLevel, link.URL)
	}

	fmt.Fprintf(f.out, "\nRiskiest link: %s\n", report.Riskiest.URL)
	f.printResult(report.Riskiest.Result)

	return report, nil
}

func (f *CliFilter) printResult(result *core.ScoreResult) {
	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Verdict: %s\n", strings.ToUpper(string(result.Verdict)))
	fmt.Fprintf(f.out, "Score: %d/100\n", result.Score)
	fmt.Fprintf(f.out, "Threat level: %s\n", result.ThreatLevel)
	fmt.Fprintf(f.out, "Reason: %s\n", result.Reason)

	if f.verbose {
		f.printBreakdown(result.Breakdown)

		if len(result.IntelSummary) > 0 {
			fmt.Fprintf(f.out, "\nIntel:\n")
			names := make([]string, 0, len(result.IntelSummary))
			for name := range result.IntelSummary {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				r := result.IntelSummary[name]
				status := "clean"
				switch {
				case r.Error != "":
					status = "error: " + r.Error
				case r.Found:
					status = fmt.Sprintf("found (+%d)", r.ScoreContribution)
				}
				if r.Cached {
					status += " [cached]"
				}
				fmt.Fprintf(f.out, "  %-12s %s\n", name, status)
			}
		}
	}
}

func (f *CliFilter) printBreakdown(findings []core.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(f.out, "\nBreakdown:\n")
	for _, finding := range findings {
		fmt.Fprintf(f.out, "  +%-3d %-10s %-24s %s\n", finding.Points(), finding.Source(), finding.Rule(), finding.Detail())
	}
}

func (f *CliFilter) writeJSON(v interface{}) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
