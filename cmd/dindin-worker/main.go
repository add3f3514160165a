package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"dindin/internal/amqp"
	"dindin/internal/backend"
	"dindin/internal/cli"
	applog "dindin/internal/log"
	"dindin/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting dindin-worker")

	cfg := cli.LoadAndValidateConfig(logger.Logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	ctx := context.Background()
	repo, _, closeStore := cli.OpenStore(ctx, logger.Logger, cfg)

	_, exportCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid export configuration", "error", err)
		os.Exit(1)
	}
	exp, err := backend.NewFactory(logger.Logger).CreateExporter(ctx, exportCfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err, "backend", exportCfg.Type)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	amqpClient.SetPrefetch(cfg.WorkerPrefetch)

	exportWorker := worker.NewExportWorker(repo, exp.Exporter)

	runCtx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", "error", err)
		}
		if exp.Cleanup != nil {
			if err := exp.Cleanup(); err != nil {
				logger.Warn("Exporter cleanup error", "error", err)
			}
		}
		if err := closeStore(); err != nil {
			logger.Warn("Store close error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(runCtx)
	// Months changed while the worker was down are caught up once at start.
	g.Go(func() error {
		if err := exportWorker.ExportAll(gctx, cfg.DefaultUserID); err != nil {
			logger.Warn("Startup export failed", "user_id", cfg.DefaultUserID, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Consuming ledger mutations", "queue", cfg.AMQPQueue, "prefetch", cfg.WorkerPrefetch)
		return amqpClient.Consume(gctx, exportWorker.HandleMutation)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(runCtx, done)
	logger.Info("Worker stopped gracefully")
}
