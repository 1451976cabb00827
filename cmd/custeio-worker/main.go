package main

import (
	"context"
	"errors"
	"os"
	"time"

	"custeio/internal/amqp"
	"custeio/internal/cli"
	"custeio/internal/log"
	"custeio/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.DefaultConfig().Level)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLoggerFromConfig(cfg).WithComponent(log.ComponentWorker)

	logger.Info("Starting custeio-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	store, closeStore := cli.InitStore(logger, cfg)
	defer closeStore()
	loader, memo := cli.NewLoader(cfg, store)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	warmWorker := worker.NewWarmWorker(loader, memo, cfg.AvailableYears)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if cfg.WarmOnStartup {
		logger.Info("Warming missing years...")
		if err := warmWorker.StartupWarm(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Startup warm failed", log.FieldError, err)
			// Keep consuming: a later request can still fill the gap.
		}
	}

	go warmWorker.Run(ctx, cfg.RefreshInterval)

	if err := amqpClient.ConsumeWarmRequests(ctx, warmWorker.HandleWarmMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
