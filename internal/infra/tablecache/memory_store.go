package tablecache

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/practice-kpi/internal/domain/kpi"
)

type tableEntry struct {
	table     *kpi.Table
	expiresAt time.Time
}

// MemoryStore keeps tables in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]tableEntry
	now     func() time.Time
}

// NewMemoryStore constructs a store backed by process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]tableEntry), now: time.Now}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*kpi.Table, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.hasExpired(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.table, true, nil
}

// Set caches the table with optional TTL.
func (s *MemoryStore) Set(_ context.Context, key string, table *kpi.Table, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp := time.Time{}
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.entries[key] = tableEntry{table: table, expiresAt: exp}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) hasExpired(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return ts.Before(s.now())
}

var _ Store = (*MemoryStore)(nil)
