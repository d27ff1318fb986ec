package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a KV held in process memory. It is used in tests and
// when the server runs with the "memory" backend.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	sequence uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get implements KV.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{Key: e.Key, Value: cloneBytes(e.Value), Revision: e.Revision}, nil
}

// Put implements KV.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(key, value), nil
}

// Update implements KV.
func (s *MemoryStore) Update(ctx context.Context, key string, value []byte, lastRevision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if lastRevision == 0 && ok {
		return 0, ErrConflict
	}
	if lastRevision != 0 && (!ok || e.Revision != lastRevision) {
		return 0, ErrConflict
	}
	return s.store(key, value), nil
}

// Delete implements KV.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Keys implements KV.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// store must be called with s.mu held.
func (s *MemoryStore) store(key string, value []byte) uint64 {
	s.sequence++
	s.entries[key] = Entry{Key: key, Value: cloneBytes(value), Revision: s.sequence}
	return s.sequence
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
