package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/cache"
	"github.com/mikey/link-risk-engine/internal/adapters/filter"
	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/core"
	"github.com/mikey/link-risk-engine/internal/heuristic"
	"github.com/mikey/link-risk-engine/internal/intel"
	"github.com/mikey/link-risk-engine/internal/textscan"
	"github.com/mikey/link-risk-engine/internal/utils"
)

const linearModel = `{
	"labels": ["legit", "scam"],
	"vocabulary": {"free": 0, "prize": 1},
	"idf": [1, 1],
	"coef": [3, 3],
	"intercept": -1
}`

func newConfig(overrides map[string]interface{}) *config.Config {
	cfg := config.NewFromViper(config.NewEmptyViper())
	for k, v := range overrides {
		cfg.Set(k, v)
	}
	return cfg
}

func TestCreateCacheRepository(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		repo, err := NewCacheFactory(newConfig(nil), zap.NewNop()).CreateCacheRepository()
		require.NoError(t, err)
		defer repo.Stop()

		assert.IsType(t, &cache.MemoryCache{}, repo)
	})

	t.Run("sqlite creates the directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "cache.db")
		repo, err := NewCacheFactory(newConfig(map[string]interface{}{
			"cache.type":        "sqlite",
			"cache.sqlite_path": path,
		}), zap.NewNop()).CreateCacheRepository()
		require.NoError(t, err)
		defer repo.Stop()

		assert.IsType(t, &cache.SQLiteCache{}, repo)
		_, err = os.Stat(filepath.Dir(path))
		assert.NoError(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewCacheFactory(newConfig(map[string]interface{}{"cache.type": "redis"}), zap.NewNop()).CreateCacheRepository()
		assert.ErrorContains(t, err, "unsupported cache type: redis")
	})
}

func newClassifierFactory(overrides map[string]interface{}) *ClassifierFactory {
	return NewClassifierFactory(newConfig(overrides), zap.NewNop(), utils.NewTextProcessor(zap.NewNop()))
}

func TestCreateClassifier(t *testing.T) {
	ctx := context.Background()

	t.Run("none is unavailable", func(t *testing.T) {
		cls, err := newClassifierFactory(nil).CreateClassifier()
		require.NoError(t, err)

		assert.False(t, cls.Available())
	})

	t.Run("linear model from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		require.NoError(t, os.WriteFile(path, []byte(linearModel), 0644))

		cls, err := newClassifierFactory(map[string]interface{}{
			"classifier.provider":   "linear",
			"classifier.model_path": path,
		}).CreateClassifier()
		require.NoError(t, err)

		require.True(t, cls.Available())
		label, confidence, err := cls.Predict(ctx, "free prize")
		require.NoError(t, err)
		assert.Equal(t, "scam", label)
		assert.Greater(t, confidence, 0.5)
	})

	t.Run("missing linear model leaves it unavailable", func(t *testing.T) {
		cls, err := newClassifierFactory(map[string]interface{}{
			"classifier.provider":   "linear",
			"classifier.model_path": filepath.Join(t.TempDir(), "missing.json"),
		}).CreateClassifier()
		require.NoError(t, err)

		assert.False(t, cls.Available())
	})

	t.Run("hosted providers need an api key", func(t *testing.T) {
		for _, provider := range []string{"openai", "gemini"} {
			cls, err := newClassifierFactory(map[string]interface{}{"classifier.provider": provider}).CreateClassifier()
			require.NoError(t, err)
			assert.False(t, cls.Available(), provider)
		}
	})

	t.Run("openai with a key", func(t *testing.T) {
		cls, err := newClassifierFactory(map[string]interface{}{
			"classifier.provider": "openai",
			"openai.api_key":      "sk-test",
		}).CreateClassifier()
		require.NoError(t, err)

		assert.True(t, cls.Available())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := newClassifierFactory(map[string]interface{}{"classifier.provider": "svm"}).CreateClassifier()
		assert.ErrorContains(t, err, "unsupported classifier provider: svm")
	})
}

func TestCreateIntelClient(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		client, err := NewIntelFactory(newConfig(map[string]interface{}{"intel.enabled": false}),
			zap.NewNop(), nil, nil).CreateIntelClient()
		require.NoError(t, err)

		assert.Nil(t, client)
	})

	t.Run("providers follow configuration order", func(t *testing.T) {
		f := NewIntelFactory(newConfig(map[string]interface{}{
			"intel.providers": []string{"URLhaus", "virustotal"},
		}), zap.NewNop(), nil, nil)

		providers, err := f.CreateProviders()
		require.NoError(t, err)
		require.Len(t, providers, 2)
		assert.Equal(t, intel.URLhausName, providers[0].Name())
		assert.Equal(t, intel.VirusTotalName, providers[1].Name())
		assert.False(t, providers[1].Configured())

		client, err := f.CreateIntelClient()
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewIntelFactory(newConfig(map[string]interface{}{
			"intel.providers": []string{"phishtank"},
		}), zap.NewNop(), nil, nil).CreateIntelClient()
		assert.ErrorContains(t, err, "unsupported intel provider: phishtank")
	})
}

func TestCreateScanFilter(t *testing.T) {
	service := core.NewRiskScoringService(heuristic.NewAnalyzer(), textscan.NewAnalyzer(nil, nil),
		nil, nil, zap.NewNop(), core.DefaultThresholds())
	scanner := filter.NewLinkScanner(service, 10, zap.NewNop())

	tests := []struct {
		filterType string
		want       interface{}
		wantErr    string
	}{
		{filterType: "postfix", want: &filter.PostfixFilter{}},
		{filterType: "cli", want: &filter.CliFilter{}},
		{filterType: "milter", wantErr: "unsupported filter type: milter"},
	}

	for _, tt := range tests {
		t.Run(tt.filterType, func(t *testing.T) {
			cfg := newConfig(map[string]interface{}{"server.filter_type": tt.filterType})

			scanFilter, err := NewFilterFactory(cfg, zap.NewNop(), service, scanner).CreateScanFilter()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, scanFilter)
		})
	}
}
