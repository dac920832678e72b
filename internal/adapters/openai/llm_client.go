package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/classifier"
	"github.com/mikey/link-risk-engine/internal/utils"
)

// Classifier labels messages with an OpenAI chat model
type Classifier struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxTextSize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClient builds an OpenAI API client, honouring a custom base URL
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// NewClassifier creates a new OpenAI classifier
func NewClassifier(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxTextSize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}

	return &Classifier{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxTextSize:   maxTextSize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Available reports whether a client is configured
func (c *Classifier) Available() bool {
	return c.client != nil
}

// Predict asks the model whether the message is a scam
func (c *Classifier) Predict(ctx context.Context, text string) (string, float64, error) {
	prompt := fmt.Sprintf(classifier.PromptFormat, c.textProcessor.ProcessText(text, c.maxTextSize))

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: classifier.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("empty response from OpenAI")
	}

	label, confidence, err := classifier.ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return "", 0, err
	}

	c.logger.Debug("OpenAI classified message",
		zap.String("model", c.modelName),
		zap.String("response_id", resp.ID),
		zap.String("label", label),
		zap.Float64("confidence", confidence))

	return label, confidence, nil
}
