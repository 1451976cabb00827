package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"custeio/internal/amqp"
	"custeio/internal/cli"
	apphttp "custeio/internal/http"
	"custeio/internal/insights"
	"custeio/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.DefaultConfig().Level)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLoggerFromConfig(cfg)

	store, closeStore := cli.InitStore(logger, cfg)
	defer closeStore()
	loader, memo := cli.NewLoader(cfg, store)

	summarizer := insights.New(insights.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		Timeout:     cfg.OpenAITimeout,
	})
	if !summarizer.Configured() {
		logger.Info("Insights disabled - no OPENAI_API_KEY provided")
	}

	deps := apphttp.Deps{
		Loader:   loader,
		Cache:    memo,
		Insights: summarizer,
		Years:    cfg.AvailableYears,
		Logger:   logger.WithComponent(log.ComponentHTTP),
	}

	// The publisher is optional: without a broker, refreshes run in the request.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		deps.Publisher = amqpClient
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - refreshes run synchronously")
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)

	// Loading a year downloads twelve archives, so writes get a long budget.
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 5 * time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting custeio server",
		"port", cfg.Port,
		"cache_backend", cfg.CacheBackend,
		"years", cfg.AvailableYears,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
