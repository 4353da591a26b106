package store

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process Store for tests and for running
// without a database file. Optionally fails every operation, to
// exercise the swallow-and-degrade paths.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailAll makes every Get/Set return an error.
	FailAll bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

var errUnavailable = errors.New("store unavailable")

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailAll {
		return nil, errUnavailable
	}
	if v, ok := s.data[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAll {
		return errUnavailable
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
