package blob

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MemStore is an in-memory Store used by tests and by the mem:// scheme.
// Safe for concurrent use.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.blobs[name]; taken {
		return fmt.Errorf("mem store put %s: %w", name, ErrExists)
	}
	s.blobs[name] = slices.Clone(data)
	return nil
}

// List implements Store.
func (s *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, fmt.Errorf("mem store get %s: %w", name, ErrNotFound)
	}
	return slices.Clone(data), nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }

// Len reports the number of stored blobs. Test helper.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
