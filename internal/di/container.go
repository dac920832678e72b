package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/classifier"
	"github.com/mikey/link-risk-engine/internal/adapters/filter"
	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/core"
	"github.com/mikey/link-risk-engine/internal/factory"
	"github.com/mikey/link-risk-engine/internal/heuristic"
	"github.com/mikey/link-risk-engine/internal/intel"
	"github.com/mikey/link-risk-engine/internal/logging"
	"github.com/mikey/link-risk-engine/internal/metrics"
	"github.com/mikey/link-risk-engine/internal/ports"
	"github.com/mikey/link-risk-engine/internal/textscan"
	"github.com/mikey/link-risk-engine/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideEngine(container); err != nil {
		return nil, err
	}

	// Register scan filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.ScanFilter, error) {
		return f.CreateScanFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideEngine registers everything below the front end. The container must
// already provide *config.Config and *zap.Logger.
func provideEngine(container *dig.Container) error {
	// Register factories
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewIntelFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register metrics
	if err := container.Provide(metrics.New); err != nil {
		return err
	}
	if err := container.Provide(func(m *metrics.Metrics) intel.Recorder {
		return m
	}); err != nil {
		return err
	}

	// Register cache repository
	if err := container.Provide(func(f *factory.CacheFactory) (factory.StoppableCache, error) {
		return f.CreateCacheRepository()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(c factory.StoppableCache) core.CacheRepository {
		return c
	}); err != nil {
		return err
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (*classifier.Lazy, error) {
		return f.CreateClassifier()
	}); err != nil {
		return err
	}

	// Register intel client
	if err := container.Provide(func(f *factory.IntelFactory) (core.IntelClient, error) {
		client, err := f.CreateIntelClient()
		if err != nil || client == nil {
			// A typed nil would defeat the service's nil check
			return nil, err
		}
		return client, nil
	}); err != nil {
		return err
	}

	// Register risk scoring service
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		cls *classifier.Lazy,
		intelClient core.IntelClient,
		m *metrics.Metrics,
	) *core.RiskScoringService {
		scoring := cfg.GetScoring()
		return core.NewRiskScoringService(
			heuristic.NewAnalyzer(),
			textscan.NewAnalyzer(cls, logger),
			intelClient,
			m,
			logger,
			core.Thresholds{High: scoring.HighThreshold, Medium: scoring.MediumThreshold},
		)
	}); err != nil {
		return err
	}

	// Register link scanner
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger, service *core.RiskScoringService) *filter.LinkScanner {
		return filter.NewLinkScanner(service, cfg.GetServer().MaxLinks, logger)
	}); err != nil {
		return err
	}

	return nil
}
