package factory

import (
	"context"
	"fmt"

	"github.com/mikey/link-risk-engine/internal/adapters/openai"
	"github.com/mikey/link-risk-engine/internal/core"
)

// createOpenAI creates an OpenAI classifier
func (f *ClassifierFactory) createOpenAI(ctx context.Context) (core.Classifier, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	return openai.NewClassifier(
		openai.NewClient(openaiCfg.APIKey, openaiCfg.BaseURL),
		openaiCfg.ModelName,
		openaiCfg.MaxTokens,
		openaiCfg.Temperature,
		openaiCfg.TopP,
		f.cfg.GetClassifier().MaxTextSize,
		f.logger,
		f.textProcessor,
	), nil
}
