package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// LinearModelFile is the on-disk form of a TF-IDF logistic regression model
type LinearModelFile struct {
	// Labels holds the negative and positive class, in that order
	Labels     []string       `json:"labels"`
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
	Coef       []float64      `json:"coef"`
	Intercept  float64        `json:"intercept"`
	MaxNgram   int            `json:"max_ngram"`
}

// LinearModel scores text with a binary TF-IDF logistic regression
type LinearModel struct {
	labels     [2]string
	vocabulary map[string]int
	idf        []float64
	coef       []float64
	intercept  float64
	maxNgram   int
}

// LoadLinearModel reads a model file from disk
func LoadLinearModel(path string) (*LinearModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()

	return ParseLinearModel(f)
}

// ParseLinearModel decodes and validates a model
func ParseLinearModel(r io.Reader) (*LinearModel, error) {
	var file LinearModelFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	if len(file.Labels) != 2 {
		return nil, fmt.Errorf("model must have exactly 2 labels, got %d", len(file.Labels))
	}
	if len(file.Vocabulary) == 0 {
		return nil, fmt.Errorf("model vocabulary is empty")
	}
	if len(file.IDF) != len(file.Coef) {
		return nil, fmt.Errorf("model has %d idf weights but %d coefficients", len(file.IDF), len(file.Coef))
	}
	for term, idx := range file.Vocabulary {
		if idx < 0 || idx >= len(file.Coef) {
			return nil, fmt.Errorf("vocabulary term %q has index %d out of range", term, idx)
		}
	}

	maxNgram := file.MaxNgram
	if maxNgram < 1 {
		maxNgram = 1
	}

	return &LinearModel{
		labels:     [2]string{strings.ToLower(file.Labels[0]), strings.ToLower(file.Labels[1])},
		vocabulary: file.Vocabulary,
		idf:        file.IDF,
		coef:       file.Coef,
		intercept:  file.Intercept,
		maxNgram:   maxNgram,
	}, nil
}

// Available reports that a parsed model can always serve
func (m *LinearModel) Available() bool { return true }

// Predict returns the more probable label and its probability
func (m *LinearModel) Predict(ctx context.Context, text string) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	weights := m.vectorize(text)

	z := m.intercept
	for idx, w := range weights {
		z += w * m.coef[idx]
	}
	p := 1 / (1 + math.Exp(-z))

	if p >= 0.5 {
		return m.labels[1], p, nil
	}
	return m.labels[0], 1 - p, nil
}

// vectorize returns the L2 normalized tf-idf weights of the known terms
func (m *LinearModel) vectorize(text string) map[int]float64 {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)

	counts := make(map[int]float64)
	for n := 1; n <= m.maxNgram; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			term := strings.Join(tokens[i:i+n], " ")
			if idx, ok := m.vocabulary[term]; ok {
				counts[idx]++
			}
		}
	}

	var norm float64
	for idx, c := range counts {
		w := c * m.idf[idx]
		counts[idx] = w
		norm += w * w
	}
	if norm == 0 {
		return counts
	}

	norm = math.Sqrt(norm)
	for idx := range counts {
		counts[idx] /= norm
	}
	return counts
}
