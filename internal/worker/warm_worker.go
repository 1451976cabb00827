package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"custeio/internal/amqp"
	"custeio/internal/core"
	"custeio/internal/log"
	"custeio/internal/pipeline"
)

// DefaultConcurrency bounds how many years are warmed at once.
const DefaultConcurrency = 2

// Loader loads the dataset of a year through the cache.
type Loader interface {
	Load(ctx context.Context, req pipeline.Request) (core.Dataset, error)
}

// CacheLister reports which years are already cached.
type CacheLister interface {
	Cached(ctx context.Context) ([]int, error)
}

// WarmWorker keeps the dataset cache filled for the configured years.
type WarmWorker struct {
	loader      Loader
	cached      CacheLister
	years       []int
	concurrency int
}

func NewWarmWorker(loader Loader, cached CacheLister, years []int) *WarmWorker {
	return &WarmWorker{
		loader:      loader,
		cached:      cached,
		years:       slices.Clone(years),
		concurrency: DefaultConcurrency,
	}
}

// HandleWarmMessage loads the requested year. Years outside the configured
// set are acknowledged without work.
func (w *WarmWorker) HandleWarmMessage(ctx context.Context, msg *amqp.WarmRequestMessage) error {
	if !slices.Contains(w.years, msg.Year) {
		slog.WarnContext(ctx, "Ignoring warm request for unavailable year",
			log.FieldComponent, log.ComponentWorker,
			log.FieldYear, msg.Year)
		return nil
	}

	slog.InfoContext(ctx, "Processing warm request",
		log.NewFields().WithComponent(log.ComponentWorker).WithLoad(msg.Year, msg.Force).ToSlice()...)

	if _, err := w.loader.Load(ctx, pipeline.Request{Year: msg.Year, ForceRefresh: msg.Force}); err != nil {
		return fmt.Errorf("warm %d: %w", msg.Year, err)
	}
	return nil
}

// StartupWarm loads every configured year missing from the cache. Failures
// are logged per year and do not stop the others.
func (w *WarmWorker) StartupWarm(ctx context.Context) error {
	cached, err := w.cached.Cached(ctx)
	if err != nil {
		return fmt.Errorf("list cached years: %w", err)
	}

	var missing []int
	for _, y := range w.years {
		if !slices.Contains(cached, y) {
			missing = append(missing, y)
		}
	}
	if len(missing) == 0 {
		slog.InfoContext(ctx, "All configured years already cached",
			log.FieldComponent, log.ComponentWorker,
			"years", w.years)
		return nil
	}

	slog.InfoContext(ctx, "Warming missing years",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpWarm,
		"years", missing)

	failed := w.warm(ctx, missing)

	slog.InfoContext(ctx, "Startup warm completed",
		log.FieldComponent, log.ComponentWorker,
		"total", len(missing),
		"warmed", len(missing)-failed,
		"errors", failed)

	return ctx.Err()
}

// RefreshLatest reloads the newest configured year, the only one that
// still gains months.
func (w *WarmWorker) RefreshLatest(ctx context.Context) error {
	if len(w.years) == 0 {
		return nil
	}
	latest := slices.Max(w.years)
	if _, err := w.loader.Load(ctx, pipeline.Request{Year: latest, ForceRefresh: true}); err != nil {
		return fmt.Errorf("refresh %d: %w", latest, err)
	}
	return nil
}

// Run refreshes the newest year every interval until ctx is done.
func (w *WarmWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RefreshLatest(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.ErrorContext(ctx, "Periodic refresh failed",
					log.NewFields().WithComponent(log.ComponentWorker).WithError(err).ToSlice()...)
			}
		}
	}
}

// warm loads years with bounded concurrency and returns how many failed.
func (w *WarmWorker) warm(ctx context.Context, years []int) int {
	results := make([]error, len(years))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, y := range years {
		g.Go(func() error {
			_, err := w.loader.Load(gctx, pipeline.Request{Year: y})
			results[i] = err
			return nil
		})
	}
	g.Wait()

	failed := 0
	for i, err := range results {
		if err == nil {
			continue
		}
		failed++
		slog.ErrorContext(ctx, "Failed to warm year",
			log.FieldComponent, log.ComponentWorker,
			log.FieldYear, years[i],
			log.FieldErrorKind, core.ErrorKind(err),
			log.FieldError, err.Error())
	}
	return failed
}
