package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/core"
	"github.com/mikey/link-risk-engine/internal/evaluation"
	"github.com/mikey/link-risk-engine/internal/heuristic"
	"github.com/mikey/link-risk-engine/internal/logging"
	"github.com/mikey/link-risk-engine/internal/textscan"
)

var (
	datasetPath = flag.String("dataset", "data/test_dataset.csv", "Labeled CSV dataset with url and label columns")
	outPath     = flag.String("out", "data/metrics.json", "Where the metrics JSON is written")
	configFile  = flag.String("config", "", "Path to config file")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, false)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("Evaluation failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	var cfg *config.Config
	if *configFile != "" {
		var err error
		if cfg, err = config.NewWithFile(*configFile); err != nil {
			return err
		}
	} else {
		cfg = config.NewFromViper(config.NewEmptyViper())
	}

	file, err := os.Open(*datasetPath)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	samples, err := evaluation.ReadSamples(file)
	if err != nil {
		return err
	}
	logger.Info("Loaded dataset", zap.String("path", *datasetPath), zap.Int("samples", len(samples)))

	// Intel is never queried during evaluation, so no client is built
	scoring := cfg.GetScoring()
	service := core.NewRiskScoringService(
		heuristic.NewAnalyzer(),
		textscan.NewAnalyzer(nil, logger),
		nil,
		nil,
		logger,
		core.Thresholds{High: scoring.HighThreshold, Medium: scoring.MediumThreshold},
	)

	report, err := evaluation.NewEvaluator(service, logger).Run(context.Background(), samples)
	if err != nil {
		return err
	}

	if err := evaluation.WriteReport(*outPath, report); err != nil {
		return err
	}

	fmt.Printf("\n=== Evaluation ===\n")
	fmt.Printf("Samples: %d\n", report.DatasetSize)
	fmt.Printf("Correct: %d\n", report.Correct)
	fmt.Printf("Accuracy: %.3f\n", report.Accuracy)
	fmt.Printf("Precision: %.3f\n", report.Precision)
	fmt.Printf("Recall: %.3f\n", report.Recall)
	fmt.Printf("F1: %.3f\n", report.F1)
	fmt.Printf("Metrics written to %s\n", *outPath)

	return nil
}
