package cache

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"custeio/internal/core"
	"custeio/internal/log"
)

// ComputeFunc produces the dataset of a year on a cache miss.
type ComputeFunc func(ctx context.Context, year int) (core.Dataset, error)

// Memo is a get-or-compute cache keyed by year. Concurrent misses for the
// same year share one computation.
type Memo struct {
	store          Store
	mem            Cache[int, memEntry]
	group          singleflight.Group
	computeTimeout time.Duration
}

// memEntry is a dataset held in memory together with the store version it
// was read or written at. version is empty when the save failed.
type memEntry struct {
	ds      core.Dataset
	version string
}

type memoResult struct {
	ds  core.Dataset
	hit bool
}

// MemoOption configures a Memo.
type MemoOption func(*Memo)

// WithComputeTimeout bounds a shared computation. The bound applies
// whatever the callers' contexts are; zero leaves it unbounded.
func WithComputeTimeout(d time.Duration) MemoOption {
	return func(m *Memo) {
		m.computeTimeout = d
	}
}

// NewMemo fronts store with an in-memory LRU holding up to memSize years.
// Memory entries never expire but are dropped when the store version moves.
func NewMemo(store Store, memSize int, opts ...MemoOption) *Memo {
	m := &Memo{
		store: store,
		mem:   NewLRUCache[int, memEntry](memSize, 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCompute returns the cached dataset for year, or runs compute and
// stores its result. hit reports whether compute was skipped. A failed
// compute leaves the cache untouched.
//
// The shared computation does not inherit the cancellation of the caller
// that started it; each caller stops waiting when its own ctx is done.
func (m *Memo) GetOrCompute(ctx context.Context, year int, compute ComputeFunc) (core.Dataset, bool, error) {
	if ds, ok := m.fresh(ctx, year); ok {
		return ds, true, nil
	}

	ch := m.group.DoChan(strconv.Itoa(year), func() (any, error) {
		cctx := context.WithoutCancel(ctx)
		if m.computeTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(cctx, m.computeTimeout)
			defer cancel()
		}

		if ds, ok := m.fresh(cctx, year); ok {
			return memoResult{ds: ds, hit: true}, nil
		}
		if ds, version, ok := m.load(cctx, year); ok {
			m.mem.Set(year, memEntry{ds: ds, version: version})
			return memoResult{ds: ds, hit: true}, nil
		}

		start := time.Now()
		ds, err := compute(cctx, year)
		if err != nil {
			return nil, err
		}
		entry := memEntry{ds: ds}
		if err := m.store.Save(cctx, ds); err != nil {
			slog.WarnContext(cctx, "Failed to persist dataset, serving from memory",
				log.FieldComponent, log.ComponentCache,
				log.FieldYear, year,
				log.FieldError, err)
		} else if version, ok, err := m.store.Version(cctx, year); err == nil && ok {
			entry.version = version
		}
		m.mem.Set(year, entry)
		slog.InfoContext(cctx, "Dataset computed and cached",
			log.FieldComponent, log.ComponentCache,
			log.FieldYear, year,
			log.FieldRecords, ds.Len(),
			log.FieldDuration, time.Since(start).Milliseconds())
		return memoResult{ds: ds}, nil
	})

	select {
	case <-ctx.Done():
		return core.Dataset{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.Dataset{}, false, res.Err
		}
		r := res.Val.(memoResult)
		return r.ds, r.hit, nil
	}
}

// fresh returns the in-memory dataset for year if the store still holds
// the version it was cached at. An unreachable store keeps the memory copy.
func (m *Memo) fresh(ctx context.Context, year int) (core.Dataset, bool) {
	e, ok := m.mem.Get(year)
	if !ok {
		return core.Dataset{}, false
	}
	version, stored, err := m.store.Version(ctx, year)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "Cannot check cache entry version, serving from memory",
			log.FieldComponent, log.ComponentCache,
			log.FieldYear, year,
			log.FieldError, err)
		return e.ds, true
	case !stored && e.version == "":
		return e.ds, true
	case stored && version == e.version:
		return e.ds, true
	}
	m.mem.Delete(year)
	slog.DebugContext(ctx, "Dataset changed in store, dropping memory copy",
		log.FieldComponent, log.ComponentCache,
		log.FieldYear, year)
	return core.Dataset{}, false
}

// load reads year from the store. A broken entry counts as a miss so the
// next compute overwrites it. The version is read first, so a concurrent
// Save can only make the returned version older than the dataset.
func (m *Memo) load(ctx context.Context, year int) (core.Dataset, string, bool) {
	version, ok, err := m.store.Version(ctx, year)
	if err == nil && ok {
		var ds core.Dataset
		if ds, ok, err = m.store.Load(ctx, year); err == nil && ok {
			return ds, version, true
		}
	}
	if err != nil {
		slog.WarnContext(ctx, "Ignoring unreadable cache entry",
			log.FieldComponent, log.ComponentCache,
			log.FieldYear, year,
			log.FieldError, err)
	}
	return core.Dataset{}, "", false
}

// Invalidate drops year from memory and from the store.
func (m *Memo) Invalidate(ctx context.Context, year int) error {
	m.group.Forget(strconv.Itoa(year))
	m.mem.Delete(year)
	if err := m.store.Delete(ctx, year); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Dataset invalidated",
		log.FieldComponent, log.ComponentCache,
		log.FieldOperation, log.OpInvalidate,
		log.FieldYear, year)
	return nil
}

// Cached lists the years present in the store.
func (m *Memo) Cached(ctx context.Context) ([]int, error) {
	return m.store.Years(ctx)
}
