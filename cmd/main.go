/**
 * @description
 * This is the main entry point for the economy-service. It loads configuration,
 * opens the ledger store, connects the event publisher, builds the economy runtime
 * and serves the HTTP API until a termination signal arrives. Shutdown stops the
 * HTTP server first, then lets the runtime save balances and release the store.
 *
 * @dependencies
 * - log/slog, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Publisher for domain events.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/transfa/economy-service/internal/api"
	"github.com/transfa/economy-service/internal/app"
	"github.com/transfa/economy-service/internal/config"
	"github.com/transfa/economy-service/internal/store"
	"github.com/transfa/economy-service/pkg/rabbitmq"
)

const configDir = "."

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn("configuration warning", "detail", warning)
	}

	ctx := context.Background()

	openCtx, cancelOpen := context.WithTimeout(ctx, 15*time.Second)
	ledgerStore, err := store.Open(openCtx, cfg.Storage)
	cancelOpen()
	if err != nil {
		logger.Error("failed to open ledger store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	logger.Info("ledger store opened", "backend", cfg.Storage.Backend)

	publisher := newEventPublisher(cfg.RabbitMQ, logger)
	defer publisher.Close()

	economy, err := app.NewRuntime(ctx, cfg, ledgerStore, logger, publisher)
	if err != nil {
		logger.Error("failed to start economy runtime", "error", err)
		ledgerStore.Close()
		os.Exit(1)
	}
	economy.Start()

	loadConfig := func() (config.Config, error) { return config.LoadConfig(configDir) }
	handlers := api.NewHandlers(economy, loadConfig, logger)
	router := api.NewRouter(handlers, cfg.Auth)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("economy-service listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := economy.Shutdown(shutdownCtx); err != nil {
		logger.Error("economy shutdown incomplete", "error", err)
	}

	logger.Info("shutdown complete")
}

func newEventPublisher(cfg config.RabbitMQConfig, logger *slog.Logger) rabbitmq.EventPublisher {
	if cfg.URL == "" {
		logger.Info("rabbitmq not configured; events are logged only")
		return &rabbitmq.EventProducerFallback{}
	}
	producer, err := rabbitmq.NewEventProducer(cfg.URL, cfg.Exchange)
	if err != nil {
		logger.Warn("failed to connect to rabbitmq; using fallback publisher", "error", err)
		return &rabbitmq.EventProducerFallback{}
	}
	logger.Info("rabbitmq producer connected", "exchange", cfg.Exchange)
	return producer
}
