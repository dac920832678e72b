package factory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/classifier"
	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/core"
	"github.com/mikey/link-risk-engine/internal/utils"
)

// ClassifierFactory creates the optional message classifier
type ClassifierFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier returns a once-loading classifier for the configured
// provider. Load failures leave it unavailable rather than failing startup.
func (f *ClassifierFactory) CreateClassifier() (*classifier.Lazy, error) {
	provider := f.cfg.GetClassifier().Provider

	var load classifier.LoadFunc
	switch provider {
	case "", "none":
		load = func(ctx context.Context) (core.Classifier, error) {
			return classifier.NewUnavailable("no classifier configured"), nil
		}
	case "linear":
		load = f.createLinear
	case "openai":
		load = f.createOpenAI
	case "gemini":
		load = f.createGemini
	case "bedrock":
		load = f.createBedrock
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", provider)
	}

	return classifier.NewLazy(provider, load, f.logger), nil
}

func (f *ClassifierFactory) createLinear(ctx context.Context) (core.Classifier, error) {
	path := f.cfg.GetClassifier().ModelPath
	if path == "" {
		return nil, fmt.Errorf("classifier model path is required")
	}
	return classifier.LoadLinearModel(path)
}
