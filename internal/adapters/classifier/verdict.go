package classifier

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptFormat is the prompt sent to LLM classifiers; %s is the message
const PromptFormat = `You are a scam detection system. Classify the following message as "scam" or "legit".
Respond with a JSON object containing:
- label: string ("scam" or "legit")
- confidence: number between 0 and 1 (how confident you are in the label)
- explanation: string (brief explanation of the label)

Message:
%s

Respond only with the JSON object and nothing else.`

// SystemPrompt is the system message for chat style models
const SystemPrompt = "You are a scam detection system. Respond only with JSON."

// VerdictResponse represents the structured response from an LLM
type VerdictResponse struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// ParseVerdict extracts the label and confidence from an LLM response,
// tolerating text around the JSON object
func ParseVerdict(responseText string) (string, float64, error) {
	var verdict VerdictResponse
	if err := json.Unmarshal([]byte(responseText), &verdict); err != nil {
		// Try to extract JSON from the text response
		jsonStart := strings.Index(responseText, "{")
		jsonEnd := strings.LastIndex(responseText, "}") + 1

		if jsonStart < 0 || jsonStart >= jsonEnd {
			return "", 0, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &verdict); err != nil {
			return "", 0, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}

	label := strings.ToLower(strings.TrimSpace(verdict.Label))
	if label == "" {
		return "", 0, fmt.Errorf("LLM response has no label")
	}

	confidence := verdict.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return label, confidence, nil
}
