// Package cache memoizes normalized datasets per year.
//
// A Memo keeps recently used datasets in memory and persists every computed
// dataset through a Store, so a restart does not trigger new downloads.
// Entries never expire; they only go away through Invalidate. A memory hit
// is checked against the store version, so a refresh written by another
// process sharing the store replaces the in-memory copy.
package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"custeio/internal/core"
)

// Cache defines a generic in-memory cache
type Cache[K comparable, T any] interface {
	// Get retrieves a value from the cache
	Get(key K) (T, bool)

	// Set stores a value in the cache
	Set(key K, data T)

	// Delete removes a key from the cache
	Delete(key K)

	// Size returns the current number of items in the cache
	Size() int
}

// Store persists datasets keyed by year. Save replaces any previous entry
// for the same year atomically.
type Store interface {
	Load(ctx context.Context, year int) (core.Dataset, bool, error)
	Save(ctx context.Context, ds core.Dataset) error
	Delete(ctx context.Context, year int) error
	Years(ctx context.Context) ([]int, error)

	// Version identifies the entry stored for year and changes on every
	// Save, so processes sharing a store can spot a refresh.
	Version(ctx context.Context, year int) (string, bool, error)
}

// Encode serializes a dataset as gzip compressed JSON.
func Encode(ds core.Dataset) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(ds); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(payload []byte) (core.Dataset, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return core.Dataset{}, fmt.Errorf("decompress dataset: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("decompress dataset: %w", err)
	}
	var ds core.Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return core.Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	if ds.Records == nil {
		ds.Records = []core.Record{}
	}
	return ds, nil
}
