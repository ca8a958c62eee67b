package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adarsh-shaw/MedScriptAI/internal/ai"
	"github.com/Adarsh-shaw/MedScriptAI/internal/api"
	"github.com/Adarsh-shaw/MedScriptAI/internal/qr"
	"github.com/Adarsh-shaw/MedScriptAI/internal/records"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/config"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/logger"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/monitoring"
	"github.com/Adarsh-shaw/MedScriptAI/pkg/storage"
)

const (
	serviceName    = "medscript"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	ctx := context.Background()

	metrics := monitoring.NewMetricsCollector(serviceName)
	tracing, err := monitoring.NewTracingManager(cfg.Tracing, serviceName, serviceVersion)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}

	backend, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	kv := storage.NewInstrumented(backend, logger, metrics)

	var opts []records.Option
	if !cfg.Storage.SeedUsers {
		opts = append(opts, records.WithSeedUsers(nil))
	}
	store := records.NewStore(kv, logger, opts...)

	var model ai.Model
	gemini, err := ai.NewGeminiModel(ctx, cfg.AI.APIKey, cfg.AI.Model)
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		logger.Warn("No API key configured; interaction checks and digitization will report failure")
	case err != nil:
		logger.Fatalf("Failed to initialize generative model: %v", err)
	default:
		model = gemini
	}
	gateway := ai.NewGateway(model, logger, ai.WithTimeout(cfg.AI.RequestTimeout()), ai.WithRecorder(metrics))

	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("storage", monitoring.NewStorageHealthChecker(kv))
	health.RegisterChecker("ai", monitoring.NewCustomHealthChecker(func(context.Context) monitoring.HealthCheck {
		if model == nil {
			return monitoring.HealthCheck{Status: monitoring.HealthStatusDegraded, Message: "Generative model not configured"}
		}
		return monitoring.HealthCheck{Status: monitoring.HealthStatusHealthy, Message: "Generative model configured"}
	}))

	deps := api.Dependencies{
		Store:      store,
		AI:         gateway,
		Codec:      qr.NewCodec(cfg.QR),
		Logger:     logger,
		Health:     health,
		Monitoring: monitoring.NewMonitoringMiddleware(metrics, tracing, logger),

		HealthPath:  cfg.Monitoring.HealthPath,
		MetricsPath: cfg.Monitoring.MetricsPath,
	}
	if cfg.Monitoring.Enabled {
		deps.Metrics = metrics
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(deps),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.WithField("backend", backend.Name()).Infof("Starting MedScript server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down MedScript server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error flushing traces: %v", err)
	}
	if err := backend.Close(); err != nil {
		logger.Errorf("Error closing storage: %v", err)
	}
	logger.Info("MedScript server stopped")
}
