package factory

import (
	"context"

	"github.com/mikey/link-risk-engine/internal/adapters/bedrock"
	"github.com/mikey/link-risk-engine/internal/core"
)

// createBedrock creates a Bedrock classifier using the default AWS credential chain
func (f *ClassifierFactory) createBedrock(ctx context.Context) (core.Classifier, error) {
	bedrockCfg := f.cfg.GetBedrock()

	client, err := bedrock.NewRuntimeClient(ctx, bedrockCfg.Region)
	if err != nil {
		return nil, err
	}

	return bedrock.NewClassifier(
		client,
		bedrockCfg.ModelID,
		bedrockCfg.MaxTokens,
		bedrockCfg.Temperature,
		bedrockCfg.TopP,
		f.cfg.GetClassifier().MaxTextSize,
		f.logger,
		f.textProcessor,
	), nil
}
