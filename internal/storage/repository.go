package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"custeio/internal/cache"
	"custeio/internal/core"
	"custeio/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists encoded datasets, one row per year.
type SQLiteStore struct {
	db *sql.DB
}

// Entry describes a stored dataset without decoding it.
type Entry struct {
	Year        int
	RecordCount int
	Size        int
	CreatedAt   time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer keeps upserts serialized within the process
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load implements cache.Store
func (s *SQLiteStore) Load(ctx context.Context, year int) (core.Dataset, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM dataset_cache WHERE year = ?`, year).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Dataset{}, false, nil
	}
	if err != nil {
		return core.Dataset{}, false, fmt.Errorf("load dataset %d: %w", year, err)
	}
	ds, err := cache.Decode(payload)
	if err != nil {
		return core.Dataset{}, false, fmt.Errorf("load dataset %d: %w", year, err)
	}
	return ds, true, nil
}

// Save implements cache.Store. The upsert is a single statement, so a
// reader sees either the previous dataset or the new one.
func (s *SQLiteStore) Save(ctx context.Context, ds core.Dataset) error {
	payload, err := cache.Encode(ds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dataset_cache (year, record_count, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			record_count = excluded.record_count,
			payload      = excluded.payload,
			created_at   = excluded.created_at`,
		ds.Year, ds.Len(), payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save dataset %d: %w", ds.Year, err)
	}

	slog.DebugContext(ctx, "Dataset saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldYear, ds.Year,
		log.FieldRecords, ds.Len(),
		"bytes", len(payload))
	return nil
}

// Delete implements cache.Store
func (s *SQLiteStore) Delete(ctx context.Context, year int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dataset_cache WHERE year = ?`, year); err != nil {
		return fmt.Errorf("delete dataset %d: %w", year, err)
	}
	return nil
}

// Years implements cache.Store
func (s *SQLiteStore) Years(ctx context.Context) ([]int, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	years := make([]int, len(entries))
	for i, e := range entries {
		years[i] = e.Year
	}
	return years, nil
}

// Version implements cache.Store. The save timestamp doubles as the
// version, so a refresh by another process changes it.
func (s *SQLiteStore) Version(ctx context.Context, year int) (string, bool, error) {
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM dataset_cache WHERE year = ?`, year).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dataset %d version: %w", year, err)
	}
	return created, true, nil
}

// Entries lists stored datasets ordered by year.
func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, record_count, length(payload), created_at FROM dataset_cache ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.Year, &e.RecordCount, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scan dataset entry: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ cache.Store = (*SQLiteStore)(nil)
