// Package cli provides the initialization shared by cmd/custeio and
// cmd/custeio-worker.
package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"custeio/internal/backend"
	"custeio/internal/cache"
	"custeio/internal/config"
	"custeio/internal/core"
	"custeio/internal/log"
	"custeio/internal/pipeline"
	"custeio/internal/raiox"
)

// SetupLogger installs a text logger at the given level as the default
// and returns it.
func SetupLogger(level slog.Level) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = level
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// SetupLoggerFromConfig reinstalls the default logger with the configured
// level and format.
func SetupLoggerFromConfig(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = cfg.SlogLevel()
	lc.Format = cfg.LogFormat
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err, log.FieldOperation, log.OpValidate)
		os.Exit(1)
	}
	return cfg
}

// OpenStore opens the persistent layer of the dataset cache selected by
// CACHE_BACKEND. The returned close function is never nil on success.
func OpenStore(logger *log.Logger, cfg *config.Config) (cache.Store, func() error, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(logger).CreateStore(context.Background(), bc)
	if err != nil {
		return nil, nil, err
	}
	return res.Store, res.Cleanup, nil
}

// InitStore is OpenStore that exits the process on failure.
func InitStore(logger *log.Logger, cfg *config.Config) (cache.Store, func() error) {
	store, closeFn, err := OpenStore(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize dataset cache", log.FieldError, err, "backend", cfg.CacheBackend)
		os.Exit(1)
	}
	return store, closeFn
}

// NewFetcher builds the Raio-X fetcher from cfg. doer may be nil.
func NewFetcher(cfg *config.Config, doer raiox.Doer) *raiox.Fetcher {
	return raiox.NewFetcher(doer, raiox.Config{
		BaseURL: cfg.SourceBaseURL,
		CSVFile: cfg.SourceCSVFile,
		Timeout: cfg.FetchTimeout,
		Policy: raiox.Policy{
			MaxAttempts: cfg.FetchMaxAttempts,
			Unit:        cfg.FetchBackoffUnit,
		},
	}, raiox.WithProgress(raiox.ProgressFunc(func(ctx context.Context, k core.MonthKey) {
		slog.InfoContext(ctx, "Fetching month",
			log.FieldComponent, log.ComponentFetcher,
			log.FieldYear, k.Year,
			log.FieldMonth, k.String())
	})))
}

// NewLoader wires fetcher, memo and store into a pipeline loader. The
// memo is returned as well for listing cached years.
func NewLoader(cfg *config.Config, store cache.Store) (*pipeline.Loader, *cache.Memo) {
	memo := cache.NewMemo(store, cfg.MemoryCacheSize, cache.WithComputeTimeout(ComputeBudget(cfg)))
	return pipeline.NewLoader(NewFetcher(cfg, &http.Client{}), memo), memo
}

// ComputeBudget bounds the load of one year: twelve months, each spending
// every attempt up to the fetch timeout plus every backoff wait.
func ComputeBudget(cfg *config.Config) time.Duration {
	policy := raiox.Policy{MaxAttempts: cfg.FetchMaxAttempts, Unit: cfg.FetchBackoffUnit}
	perMonth := time.Duration(cfg.FetchMaxAttempts) * cfg.FetchTimeout
	for _, d := range policy.Delays() {
		perMonth += d
	}
	return 12 * perMonth
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
