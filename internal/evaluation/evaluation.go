package evaluation

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/core"
)

// maxDetails is how many per-URL rows are kept in the report
const maxDetails = 20

// ErrEmptyDataset is returned when no usable rows were read
var ErrEmptyDataset = errors.New("dataset is empty")

// Scorer scores a URL; *core.RiskScoringService satisfies it
type Scorer interface {
	Score(ctx context.Context, rawURL string, message string, skipIntel bool) *core.ScoreResult
}

// Sample is one labeled URL
type Sample struct {
	URL   string
	Label string
}

// ClassMetrics holds precision, recall and F1 for one label
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Detail is the outcome for a single sample
type Detail struct {
	URL       string `json:"url"`
	True      string `json:"true"`
	Predicted string `json:"predicted"`
	Score     int    `json:"score"`
	Correct   bool   `json:"correct"`
}

// Report is the evaluation output. Precision, Recall and F1 are macro averages.
type Report struct {
	Accuracy      float64                 `json:"accuracy"`
	Precision     float64                 `json:"precision"`
	Recall        float64                 `json:"recall"`
	F1            float64                 `json:"f1"`
	PerClass      map[string]ClassMetrics `json:"per_class"`
	DatasetSize   int                     `json:"dataset_size"`
	Correct       int                     `json:"correct"`
	LastEvaluated string                  `json:"last_evaluated"`
	Details       []Detail                `json:"details,omitempty"`
}

// ReadSamples reads a CSV with a header containing url and label columns.
// Rows with an empty url or label are skipped.
func ReadSamples(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDataset
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	urlCol, labelCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "url":
			urlCol = i
		case "label":
			labelCol = i
		}
	}
	if urlCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("dataset must have url and label columns")
	}

	samples := make([]Sample, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset: %w", err)
		}
		if urlCol >= len(record) || labelCol >= len(record) {
			continue
		}

		url := strings.TrimSpace(record[urlCol])
		label := strings.ToLower(strings.TrimSpace(record[labelCol]))
		if url == "" || label == "" {
			continue
		}
		samples = append(samples, Sample{URL: url, Label: label})
	}

	return samples, nil
}

// Evaluator scores labeled samples with intel disabled and reports metrics
type Evaluator struct {
	scorer Scorer
	logger *zap.Logger
	now    func() time.Time
}

// NewEvaluator creates a new evaluator
func NewEvaluator(scorer Scorer, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		scorer: scorer,
		logger: logger,
		now:    time.Now,
	}
}

// Run scores every sample and computes the report
func (e *Evaluator) Run(ctx context.Context, samples []Sample) (*Report, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyDataset
	}

	yTrue := make([]string, 0, len(samples))
	yPred := make([]string, 0, len(samples))
	details := make([]Detail, 0, maxDetails)

	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := e.scorer.Score(ctx, sample.URL, "", true)
		predicted := string(result.Verdict)

		yTrue = append(yTrue, sample.Label)
		yPred = append(yPred, predicted)
		if len(details) < maxDetails {
			details = append(details, Detail{
				URL:       truncate(sample.URL, 100),
				True:      sample.Label,
				Predicted: predicted,
				Score:     result.Score,
				Correct:   sample.Label == predicted,
			})
		}
	}

	report := Compute(yTrue, yPred)
	report.LastEvaluated = e.now().Format("2006-01-02")
	report.Details = details

	e.logger.Info("Evaluation complete",
		zap.Int("dataset_size", report.DatasetSize),
		zap.Int("correct", report.Correct),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("f1", report.F1))

	return &report, nil
}

// Compute derives accuracy and per-class and macro averaged metrics.
// Every label seen in either slice gets a class entry.
func Compute(yTrue, yPred []string) Report {
	labelSet := make(map[string]struct{})
	for _, l := range yTrue {
		labelSet[l] = struct{}{}
	}
	for _, l := range yPred {
		labelSet[l] = struct{}{}
	}
	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}

	perClass := make(map[string]ClassMetrics, len(labels))
	var sumP, sumR, sumF1 float64
	for _, label := range labels {
		var tp, fp, fn, support int
		for i := range yTrue {
			t, p := yTrue[i] == label, yPred[i] == label
			switch {
			case t && p:
				tp++
			case !t && p:
				fp++
			case t && !p:
				fn++
			}
			if t {
				support++
			}
		}

		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		m := ClassMetrics{
			Precision: round3(precision),
			Recall:    round3(recall),
			F1:        round3(f1),
			Support:   support,
		}
		perClass[label] = m
		sumP += m.Precision
		sumR += m.Recall
		sumF1 += m.F1
	}

	report := Report{
		PerClass:    perClass,
		DatasetSize: len(yTrue),
		Correct:     correct,
	}
	if len(yTrue) > 0 {
		report.Accuracy = round3(float64(correct) / float64(len(yTrue)))
	}
	if n := float64(len(labels)); n > 0 {
		report.Precision = round3(sumP / n)
		report.Recall = round3(sumR / n)
		report.F1 = round3(sumF1 / n)
	}

	return report
}

// WriteReport writes the report as indented JSON, creating parent directories
func WriteReport(path string, report *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadReport loads a previously written report
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
