package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/core"
	"github.com/mikey/link-risk-engine/internal/intel"
	"github.com/mikey/link-risk-engine/internal/whitelist"
)

// IntelFactory creates the threat intelligence client
type IntelFactory struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    core.CacheRepository
	recorder intel.Recorder
}

// NewIntelFactory creates a new intel factory. cache and recorder may be nil.
func NewIntelFactory(cfg *config.Config, logger *zap.Logger, cache core.CacheRepository, recorder intel.Recorder) *IntelFactory {
	return &IntelFactory{
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		recorder: recorder,
	}
}

// CreateProviders creates the configured providers in configuration order
func (f *IntelFactory) CreateProviders() ([]intel.Provider, error) {
	httpClient := intel.NewHTTPClient()
	providers := make([]intel.Provider, 0, 2)

	for _, name := range f.cfg.GetIntel().Providers {
		switch name {
		case intel.VirusTotalName:
			vtCfg := f.cfg.GetVirusTotal()
			providers = append(providers, intel.NewVirusTotal(intel.VirusTotalConfig{
				APIKey:            vtCfg.APIKey,
				BaseURL:           vtCfg.BaseURL,
				RequestsPerMinute: vtCfg.RequestsPerMinute,
			}, httpClient, f.logger))
		case intel.URLhausName:
			uhCfg := f.cfg.GetURLhaus()
			providers = append(providers, intel.NewURLhaus(intel.URLhausConfig{
				BaseURL: uhCfg.BaseURL,
				AuthKey: uhCfg.AuthKey,
			}, httpClient, f.logger))
		default:
			return nil, fmt.Errorf("unsupported intel provider: %s", name)
		}
	}

	return providers, nil
}

// CreateIntelClient creates the intel client, or nil when intel is disabled
func (f *IntelFactory) CreateIntelClient() (*intel.Client, error) {
	intelCfg := f.cfg.GetIntel()
	if !intelCfg.Enabled {
		f.logger.Info("Threat intelligence disabled")
		return nil, nil
	}

	providers, err := f.CreateProviders()
	if err != nil {
		return nil, err
	}

	for _, p := range providers {
		if !p.Configured() {
			f.logger.Warn("Intel provider not configured, it will report as such", zap.String("provider", p.Name()))
		}
	}

	var skip intel.SkipChecker
	if len(intelCfg.SkipDomains) > 0 {
		skip = whitelist.NewChecker(intelCfg.SkipDomains, f.logger)
	}

	return intel.NewClient(providers, f.cache, skip, f.recorder, intel.Options{
		Timeout:      intelCfg.Timeout,
		RetryBackoff: intelCfg.RetryBackoff,
		MaxAttempts:  intelCfg.MaxAttempts,
	}, f.logger), nil
}
