package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/filter"
	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/core"
	"github.com/mikey/link-risk-engine/internal/ports"
)

// FilterFactory creates scan filters based on configuration
type FilterFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.RiskScoringService
	scanner *filter.LinkScanner
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, service *core.RiskScoringService, scanner *filter.LinkScanner) *FilterFactory {
	return &FilterFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
		scanner: scanner,
	}
}

// CreateScanFilter creates a scan filter based on the configuration
func (f *FilterFactory) CreateScanFilter() (ports.ScanFilter, error) {
	serverCfg := f.cfg.GetServer()

	switch serverCfg.FilterType {
	case "postfix":
		return filter.NewPostfixFilter(f.scanner, f.logger, filter.PostfixOptions{
			ListenAddr:    serverCfg.ListenAddress,
			BlockHighRisk: serverCfg.BlockHighRisk,
			Headers: filter.HeaderNames{
				Score:   serverCfg.Headers.Score,
				Level:   serverCfg.Headers.Level,
				Verdict: serverCfg.Headers.Verdict,
				Reason:  serverCfg.Headers.Reason,
			},
			PostfixAddr:    serverCfg.Postfix.Address,
			PostfixPort:    serverCfg.Postfix.Port,
			PostfixEnabled: serverCfg.Postfix.Enabled,
			SubjectPrefix:  serverCfg.SubjectPrefix,
			ModifySubject:  serverCfg.ModifySubject,
			ScanTimeout:    serverCfg.ScanTimeout,
		}), nil
	case "cli":
		return filter.NewCliFilter(
			f.service,
			f.scanner,
			f.logger,
			f.cfg.GetBool("cli.verbose"),
			f.cfg.GetBool("cli.json"),
		), nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", serverCfg.FilterType)
	}
}
