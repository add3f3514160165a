package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"dindin/internal/amqp"
	"dindin/internal/assistant"
	"dindin/internal/cache"
	"dindin/internal/cli"
	"dindin/internal/core"
	apphttp "dindin/internal/http"
	"dindin/internal/live"
	applog "dindin/internal/log"
	"dindin/internal/services"
	"dindin/internal/tasks"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger.Logger)

	ctx := context.Background()
	repo, store, closeStore := cli.OpenStore(ctx, logger.Logger, cfg)

	// A nil *amqp.Client must not reach the Publisher interface.
	var publisher services.Publisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		amqpClient, publisher = client, client
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	cacheManager := cache.NewManager()
	profiles := cache.NewLRUCache[core.User](cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	cacheManager.Register("profiles", profiles)

	txService := services.NewTransactionService(repo, publisher, profiles)
	hub := live.NewHub(txService)
	txService.Subscribe(hub)

	var (
		assistantSvc *services.AssistantService
		runner       *tasks.Runner
	)
	if cfg.AssistantEnabled() {
		gen, err := assistant.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("Failed to initialize Gemini client", "error", err)
			os.Exit(1)
		}
		finished := cache.NewLRUCache[tasks.Snapshot](1000, time.Hour)
		cacheManager.Register("tasks", finished)
		runner = tasks.NewRunner(cfg.AssistantWorkers, cfg.AssistantTimeout, finished)
		assistantSvc = services.NewAssistantService(txService, assistant.New(gen, cfg.AssistantTimeout), runner)
		logger.Info("Assistant enabled", "model", cfg.GeminiModel, "workers", cfg.AssistantWorkers)
	} else {
		assistantSvc = services.NewAssistantService(txService, nil, nil)
		logger.Info("Assistant disabled - no GEMINI_API_KEY provided")
	}
	cacheManager.Start(ctx, time.Minute)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		DefaultUserID:      cfg.DefaultUserID,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Transactions:       txService,
		Assistant:          assistantSvc,
		Hub:                hub,
		Ready:              store,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if runner != nil {
			if err := runner.Close(ctx); err != nil {
				logger.Warn("Assistant tasks did not finish", "error", err)
			}
		}
		cacheManager.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
		_ = txService.Close()
		if err := closeStore(); err != nil {
			logger.Warn("Store close error", "error", err)
		}
	})

	logger.Info("Starting dindin server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
