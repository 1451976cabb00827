package cache

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"custeio/internal/core"
)

// MemoryStore is a process-local Store. Entries are kept encoded so callers
// never share backing arrays with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[int][]byte
	versions map[int]uint64
	seq      uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[int][]byte),
		versions: make(map[int]uint64),
	}
}

func (s *MemoryStore) Load(_ context.Context, year int) (core.Dataset, bool, error) {
	s.mu.RLock()
	payload, ok := s.entries[year]
	s.mu.RUnlock()
	if !ok {
		return core.Dataset{}, false, nil
	}
	ds, err := Decode(payload)
	if err != nil {
		return core.Dataset{}, false, err
	}
	return ds, true, nil
}

func (s *MemoryStore) Save(_ context.Context, ds core.Dataset) error {
	payload, err := Encode(ds)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.seq++
	s.entries[ds.Year] = payload
	s.versions[ds.Year] = s.seq
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, year int) error {
	s.mu.Lock()
	delete(s.entries, year)
	delete(s.versions, year)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Years(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	years := make([]int, 0, len(s.entries))
	for y := range s.entries {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (s *MemoryStore) Version(_ context.Context, year int) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[year]
	if !ok {
		return "", false, nil
	}
	return strconv.FormatUint(v, 10), true, nil
}
