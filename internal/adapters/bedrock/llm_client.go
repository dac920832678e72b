package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/classifier"
	"github.com/mikey/link-risk-engine/internal/utils"
)

const anthropicVersion = "bedrock-2023-05-31"

// ModelInvoker is the part of the Bedrock runtime API the classifier uses
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Classifier labels messages with a model hosted on Amazon Bedrock
type Classifier struct {
	client        ModelInvoker
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxTextSize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewRuntimeClient creates a Bedrock runtime client from the default AWS credential chain
func NewRuntimeClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return bedrockruntime.NewFromConfig(awsCfg), nil
}

// NewClassifier creates a new Bedrock classifier
func NewClassifier(
	client ModelInvoker,
	modelID string,
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
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxTextSize:   maxTextSize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Available reports whether a runtime client is configured
func (c *Classifier) Available() bool {
	return c.client != nil && c.modelID != ""
}

// Predict asks the model whether the message is a scam
func (c *Classifier) Predict(ctx context.Context, text string) (string, float64, error) {
	prompt := fmt.Sprintf(classifier.PromptFormat, c.textProcessor.ProcessText(text, c.maxTextSize))

	payload, err := buildPayload(c.modelID, prompt, c.maxTokens, c.temperature, c.topP)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := extractText(c.modelID, resp.Body)
	if err != nil {
		return "", 0, err
	}

	label, confidence, err := classifier.ParseVerdict(responseText)
	if err != nil {
		return "", 0, err
	}

	c.logger.Debug("Bedrock classified message",
		zap.String("model", c.modelID),
		zap.String("label", label),
		zap.Float64("confidence", confidence))

	return label, confidence, nil
}

// buildPayload encodes the request body in the model family's format
func buildPayload(modelID, prompt string, maxTokens int, temperature, topP float32) ([]byte, error) {
	switch {
	case isAnthropicModel(modelID):
		return json.Marshal(map[string]interface{}{
			"anthropic_version": anthropicVersion,
			"max_tokens":        maxTokens,
			"temperature":       temperature,
			"top_p":             topP,
			"system":            classifier.SystemPrompt,
			"messages": []map[string]interface{}{
				{"role": "user", "content": prompt},
			},
		})
	case isAmazonTitanModel(modelID):
		return json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": maxTokens,
				"temperature":   temperature,
				"topP":          topP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": temperature,
			"top_p":       topP,
		})
	}
}

// extractText pulls the generated text out of the model family's response
func extractText(modelID string, body []byte) (string, error) {
	switch {
	case isAnthropicModel(modelID):
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var sb strings.Builder
		for _, block := range claudeResp.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return "", fmt.Errorf("empty response from Claude model")
		}
		return sb.String(), nil

	case isAmazonTitanModel(modelID):
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil

	default:
		var genericResp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Response   string `json:"response"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}

		for _, candidate := range []string{genericResp.Output, genericResp.Text, genericResp.Response, genericResp.Generation} {
			if candidate != "" {
				return candidate, nil
			}
		}
		// Fall back to the raw body
		return string(body), nil
	}
}

// isAnthropicModel matches plain and cross-region Claude model IDs
func isAnthropicModel(modelID string) bool {
	return strings.Contains(modelID, "anthropic.claude")
}

func isAmazonTitanModel(modelID string) bool {
	return strings.Contains(modelID, "amazon.titan")
}
