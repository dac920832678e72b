package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/link-risk-engine/internal/adapters/classifier"
	"github.com/mikey/link-risk-engine/internal/config"
	"github.com/mikey/link-risk-engine/internal/di"
	"github.com/mikey/link-risk-engine/internal/factory"
	"github.com/mikey/link-risk-engine/internal/metrics"
	"github.com/mikey/link-risk-engine/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	scanFilter ports.ScanFilter,
	cls *classifier.Lazy,
	cacheRepo factory.StoppableCache,
	m *metrics.Metrics,
) error {
	defer logger.Sync()

	// Load the classifier before accepting mail so the first message does not pay for it
	loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	cls.Load(loadCtx)
	cancel()

	// Start the metrics endpoint
	var metricsServer *http.Server
	if metricsCfg := cfg.GetMetrics(); metricsCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{
			Addr:              metricsCfg.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Metrics endpoint starting", zap.String("address", metricsCfg.ListenAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	// Start the filter
	if err := scanFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	// Stop the filter
	if err := scanFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
		cancel()
	}

	// Close any resources that need closing
	if err := cls.Close(); err != nil {
		logger.Error("Failed to close classifier", zap.Error(err))
	}

	// Stop the cache
	cacheRepo.Stop()

	logger.Info("Shutdown complete")
	return nil
}
