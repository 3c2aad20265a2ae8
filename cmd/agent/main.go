package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KyPython/offline-media-sync/internal/api"
	"github.com/KyPython/offline-media-sync/internal/config"
	"github.com/KyPython/offline-media-sync/internal/connectivity"
	"github.com/KyPython/offline-media-sync/internal/database"
	"github.com/KyPython/offline-media-sync/internal/events"
	"github.com/KyPython/offline-media-sync/internal/export"
	"github.com/KyPython/offline-media-sync/internal/logging"
	"github.com/KyPython/offline-media-sync/internal/metrics"
	"github.com/KyPython/offline-media-sync/internal/queue"
	"github.com/KyPython/offline-media-sync/internal/syncer"
	"github.com/KyPython/offline-media-sync/internal/transfer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if closer != nil {
		defer func(c io.Closer) { _ = c.Close() }(closer)
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	logger.Info().Str("path", cfg.Database.Path).Msg("Queue database initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveMetrics(cfg.Monitoring.PrometheusPort, logger)
	}

	bus := events.NewEventBus()
	manager := queue.NewManager(db, cfg.Storage.BudgetBytes, cfg.Sync.MaxAttempts, logger)

	client := transfer.NewHTTPClient(cfg.Transfer.BaseURL, cfg.Transfer.APIKey, cfg.Transfer.RequestTimeout)
	uploader := transfer.NewUploader(client, transfer.RetryPolicy{}, logger)

	monitor := connectivity.NewMonitor(cfg.Connectivity, bus, logger)
	go monitor.Start(ctx)

	coordinator := syncer.NewCoordinator(manager, uploader, monitor, bus, redisClient, cfg.Sync.StaggerDelay, logger)
	coordinator.Start(ctx)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	if cfg.API.Enabled {
		exporter := export.NewExporter(manager, cfg.Exports.Path, logger)
		apiServer := api.NewHTTPServer(cfg.API, manager, coordinator, exporter, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiServer.Shutdown(shutdownCtx)
		}()
	}

	// Attempts interrupted by the previous shutdown must stay retryable.
	if _, err := manager.RecoverInFlight(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to recover interrupted uploads")
	}

	// Drain anything captured while the agent was down.
	go func() {
		if _, err := coordinator.SyncQueue(ctx); err != nil {
			logger.Error().Err(err).Msg("Startup sync pass failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		logger.Info().Msg("Redis disabled, dead-letter and wake signals unavailable")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unreachable, continuing without it")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("address", cfg.Redis.Address).Msg("Redis connected")
	return client
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Prometheus metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}
