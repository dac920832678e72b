package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/link-risk-engine/internal/core"
)

const testModel = `{
	"labels": ["legit", "scam"],
	"vocabulary": {"free": 0, "prize": 1, "meeting": 2, "claim now": 3},
	"idf": [1, 1, 1, 2],
	"coef": [3, 3, -3, 4],
	"intercept": -1,
	"max_ngram": 2
}`

func TestLinearModelPredict(t *testing.T) {
	model, err := ParseLinearModel(strings.NewReader(testModel))
	require.NoError(t, err)
	assert.True(t, model.Available())

	tests := []struct {
		name      string
		text      string
		wantLabel string
		minConf   float64
	}{
		{name: "scam words", text: "FREE prize inside", wantLabel: "scam", minConf: 0.95},
		{name: "bigram", text: "claim now", wantLabel: "scam", minConf: 0.9},
		{name: "legit words", text: "Team meeting at noon", wantLabel: "legit", minConf: 0.98},
		{name: "unknown words fall to intercept", text: "hello there", wantLabel: "legit", minConf: 0.7},
		{name: "empty", text: "", wantLabel: "legit", minConf: 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, conf, err := model.Predict(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, label)
			assert.GreaterOrEqual(t, conf, tt.minConf)
			assert.LessOrEqual(t, conf, 1.0)
		})
	}
}

func TestLinearModelVectorizeIsNormalized(t *testing.T) {
	model, err := ParseLinearModel(strings.NewReader(testModel))
	require.NoError(t, err)

	weights := model.vectorize("free free prize")
	var sum float64
	for _, w := range weights {
		sum += w * w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, weights[0], weights[1])
}

func TestLinearModelCancelledContext(t *testing.T) {
	model, err := ParseLinearModel(strings.NewReader(testModel))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = model.Predict(ctx, "free prize")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseLinearModelErrors(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{name: "not json", model: "nope"},
		{name: "one label", model: `{"labels":["scam"],"vocabulary":{"a":0},"idf":[1],"coef":[1]}`},
		{name: "empty vocabulary", model: `{"labels":["a","b"],"vocabulary":{},"idf":[],"coef":[]}`},
		{name: "length mismatch", model: `{"labels":["a","b"],"vocabulary":{"a":0},"idf":[1,2],"coef":[1]}`},
		{name: "index out of range", model: `{"labels":["a","b"],"vocabulary":{"a":3},"idf":[1],"coef":[1]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLinearModel(strings.NewReader(tt.model))
			assert.Error(t, err)
		})
	}
}

func TestLoadLinearModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(testModel), 0o600))

	model, err := LoadLinearModel(path)
	require.NoError(t, err)
	label, _, err := model.Predict(context.Background(), "free prize")
	require.NoError(t, err)
	assert.Equal(t, "scam", label)

	_, err = LoadLinearModel(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	u := NewUnavailable("no model")
	assert.False(t, u.Available())
	assert.Equal(t, "no model", u.Reason())

	_, _, err := u.Predict(context.Background(), "text")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "no model")

	_, _, err = NewUnavailable("").Predict(context.Background(), "text")
	assert.Equal(t, ErrUnavailable, err)
}

func TestLazyLoadsOnce(t *testing.T) {
	var calls int32
	model, err := ParseLinearModel(strings.NewReader(testModel))
	require.NoError(t, err)

	lazy := NewLazy("linear", func(ctx context.Context) (core.Classifier, error) {
		atomic.AddInt32(&calls, 1)
		return model, nil
	}, nil)

	lazy.Load(context.Background())
	assert.True(t, lazy.Available())
	label, _, err := lazy.Predict(context.Background(), "free prize")
	require.NoError(t, err)
	assert.Equal(t, "scam", label)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.NoError(t, lazy.Close())
}

func TestLazyFailureIsPermanent(t *testing.T) {
	var calls int32
	lazy := NewLazy("linear", func(ctx context.Context) (core.Classifier, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("corrupt model")
	}, nil)

	for i := 0; i < 3; i++ {
		assert.False(t, lazy.Available())
		_, _, err := lazy.Predict(context.Background(), "text")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLazyNilClassifier(t *testing.T) {
	lazy := NewLazy("none", func(ctx context.Context) (core.Classifier, error) {
		return nil, nil
	}, nil)
	assert.False(t, lazy.Available())
}

type closingClassifier struct {
	Unavailable
	closed bool
}

func (c *closingClassifier) Close() error {
	c.closed = true
	return nil
}

func TestLazyCloseDelegates(t *testing.T) {
	inner := &closingClassifier{}
	lazy := NewLazy("closer", func(ctx context.Context) (core.Classifier, error) {
		return inner, nil
	}, nil)
	lazy.Load(context.Background())

	require.NoError(t, lazy.Close())
	assert.True(t, inner.closed)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantLabel string
		wantConf  float64
		wantErr   bool
	}{
		{
			name:      "plain json",
			response:  `{"label": "scam", "confidence": 0.92, "explanation": "prize bait"}`,
			wantLabel: "scam",
			wantConf:  0.92,
		},
		{
			name:      "wrapped in prose",
			response:  "Here you go:\n```json\n{\"label\": \"Legit\", \"confidence\": 0.8}\n```",
			wantLabel: "legit",
			wantConf:  0.8,
		},
		{
			name:      "confidence clamped",
			response:  `{"label": "scam", "confidence": 7}`,
			wantLabel: "scam",
			wantConf:  1,
		},
		{name: "no json", response: "I think it is a scam", wantErr: true},
		{name: "broken json", response: "{label: scam}", wantErr: true},
		{name: "missing label", response: `{"confidence": 0.5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, conf, err := ParseVerdict(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, label)
			assert.InDelta(t, tt.wantConf, conf, 1e-9)
		})
	}
}
