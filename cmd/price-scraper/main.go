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

	"github.com/maltedev/merchant-price-scraper/internal/api"
	"github.com/maltedev/merchant-price-scraper/internal/app"
	"github.com/maltedev/merchant-price-scraper/internal/config"
	"github.com/maltedev/merchant-price-scraper/internal/jobs"
	"github.com/maltedev/merchant-price-scraper/internal/logging"
	"github.com/maltedev/merchant-price-scraper/internal/metrics"
	"github.com/maltedev/merchant-price-scraper/internal/orchestrator"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	logger := logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	orch, err := orchestrator.Build(cfg, orchestrator.Deps{Metrics: m, Logger: logger})
	if err != nil {
		logger.Error("failed to build merchants", "error", err)
		os.Exit(1)
	}

	// Persistence is optional; without it the price routes answer 503.
	var (
		prices     api.PriceService
		outbox     api.OutboxMonitor
		jobService api.JobService
	)
	if cfg.Persistence.Enabled {
		p, err := app.OpenPersistence(ctx, cfg, orch, m, logger)
		if err != nil {
			logger.Error("failed to initialize persistence", "error", err)
			os.Exit(1)
		}
		defer p.Close()

		p.StartRelay(ctx, logger)
		prices = p.Service
		outbox = p.Relay

		// Start job worker
		queue := jobs.NewInMemoryQueue()
		defer queue.Close()
		jobManager := jobs.NewManager(p.Service, queue, cfg.Scraper.RefreshPause, logger)
		go jobManager.StartWorker(ctx)
		jobService = jobManager
	}

	handlers := api.NewHandlers(orch, prices, outbox, jobService, logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
		Metrics:        m.Handler(),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting",
		"port", cfg.Server.Port,
		"merchants", len(orch.Merchants()),
		"persistence", cfg.Persistence.Enabled)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
