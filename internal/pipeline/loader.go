// Package pipeline loads the canonical dataset of a year, from cache when
// possible and from the remote repository otherwise.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"custeio/internal/cache"
	"custeio/internal/core"
	"custeio/internal/log"
	"custeio/internal/normalize"
	"custeio/internal/raiox"
)

// Request selects what to load. It replaces any process-wide state.
type Request struct {
	Year         int
	ForceRefresh bool
}

// Fetcher yields the raw monthly tables of a year.
type Fetcher interface {
	Fetch(ctx context.Context, year int) ([]raiox.RawTable, error)
}

// Memo is the get-or-compute cache the loader writes through.
type Memo interface {
	GetOrCompute(ctx context.Context, year int, compute cache.ComputeFunc) (core.Dataset, bool, error)
	Invalidate(ctx context.Context, year int) error
}

// Loader runs fetch, normalize and validation behind the cache.
type Loader struct {
	fetcher Fetcher
	memo    Memo
}

func NewLoader(fetcher Fetcher, memo Memo) *Loader {
	return &Loader{fetcher: fetcher, memo: memo}
}

// Load returns the dataset for req.Year. Either a complete dataset or an
// error is returned, never both.
func (l *Loader) Load(ctx context.Context, req Request) (core.Dataset, error) {
	if _, err := core.NewMonthKey(req.Year, 1); err != nil {
		return core.Dataset{}, err
	}
	start := time.Now()
	fields := log.NewFields().WithComponent(log.ComponentPipeline).WithOperation(log.OpLoad).WithLoad(req.Year, req.ForceRefresh)

	if req.ForceRefresh {
		if err := l.memo.Invalidate(ctx, req.Year); err != nil {
			return core.Dataset{}, fmt.Errorf("invalidate %d: %w", req.Year, err)
		}
	}

	ds, hit, err := l.memo.GetOrCompute(ctx, req.Year, l.compute)
	if err != nil {
		fields[log.FieldErrorKind] = core.ErrorKind(err)
		slog.ErrorContext(ctx, "Dataset load failed", fields.WithError(err).ToSlice()...)
		return core.Dataset{}, err
	}

	fields[log.FieldCacheHit] = hit
	fields[log.FieldRecords] = ds.Len()
	fields[log.FieldDuration] = time.Since(start).Milliseconds()
	slog.InfoContext(ctx, "Dataset loaded", fields.ToSlice()...)
	return ds, nil
}

func (l *Loader) compute(ctx context.Context, year int) (core.Dataset, error) {
	tables, err := l.fetcher.Fetch(ctx, year)
	if err != nil {
		return core.Dataset{}, err
	}
	ds, err := normalize.Normalize(year, tables)
	if err != nil {
		return core.Dataset{}, err
	}
	if err := ds.Validate(); err != nil {
		return core.Dataset{}, err
	}
	return ds, nil
}
