package factory

import (
	"context"
	"fmt"

	"github.com/mikey/link-risk-engine/internal/adapters/gemini"
	"github.com/mikey/link-risk-engine/internal/core"
)

// createGemini creates a Gemini classifier
func (f *ClassifierFactory) createGemini(ctx context.Context) (core.Classifier, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	return gemini.NewClassifier(
		ctx,
		geminiCfg.APIKey,
		geminiCfg.ModelName,
		geminiCfg.MaxTokens,
		geminiCfg.Temperature,
		geminiCfg.TopP,
		f.cfg.GetClassifier().MaxTextSize,
		f.logger,
		f.textProcessor,
	)
}
