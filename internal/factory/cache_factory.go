package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/cache"
	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/core"
)

// StoppableCache is a cache repository that owns background resources
type StoppableCache interface {
	core.CacheRepository
	Stop()
}

// CacheFactory creates cache repositories based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCacheRepository creates the provider result cache based on the configuration
func (f *CacheFactory) CreateCacheRepository() (StoppableCache, error) {
	cacheCfg := f.cfg.GetCache()

	switch cacheCfg.Type {
	case "memory", "":
		return cache.NewMemoryCache(cacheCfg.TTL, f.logger, cacheCfg.CleanupFrequency), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(cacheCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return cache.NewSQLiteCache(cacheCfg.SQLitePath, cacheCfg.TTL, f.logger, cacheCfg.CleanupFrequency)
	case "mysql":
		return cache.NewMySQLCache(cacheCfg.MySQLDSN, cacheCfg.TTL, f.logger, cacheCfg.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}
