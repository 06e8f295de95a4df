package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/balloon-weather-service/internal/adapter/feeds"
	httpadapter "github.com/couchcryptid/balloon-weather-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/balloon-weather-service/internal/adapter/kafka"
	"github.com/couchcryptid/balloon-weather-service/internal/aggregator"
	"github.com/couchcryptid/balloon-weather-service/internal/config"
	"github.com/couchcryptid/balloon-weather-service/internal/observability"
)

func main() {
	// A .env file is optional; real environment variables always win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	telemetry := feeds.NewTelemetryClient(cfg.TelemetryBaseURL, cfg.FetchTimeout, metrics, logger)
	weather := feeds.NewWeatherClient(cfg.WeatherBaseURL, cfg.WeatherAPIKey, cfg.FetchTimeout, metrics, logger)

	// Snapshot publishing is feature-flagged via KAFKA_ENABLED.
	var (
		publisher aggregator.SnapshotPublisher
		writer    *kafkaadapter.Publisher
	)
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewPublisher(cfg, logger)
		publisher = writer
		logger.Info("snapshot publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSnapshotTopic)
	} else {
		logger.Info("snapshot publishing disabled")
	}

	agg := aggregator.New(telemetry, weather, publisher, aggregator.SettingsFromConfig(cfg), logger, metrics)

	logger.Info("aggregator configured",
		"telemetry_base_url", cfg.TelemetryBaseURL,
		"historical_offsets", cfg.HistoricalOffsets,
		"fetch_timeout", cfg.FetchTimeout,
		"failure_mode", cfg.FailureMode,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, cfg.FetchTimeout+10*time.Second, agg, agg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := agg.Wait(shutdownCtx); err != nil {
		logger.Error("pending snapshot publishes abandoned", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
