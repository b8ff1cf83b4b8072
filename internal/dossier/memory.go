package dossier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory, thread-safe dossier store for testing and
// development.
type MemoryStore struct {
	mu       sync.RWMutex
	payloads map[string]json.RawMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: make(map[string]json.RawMessage)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, hash string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payloads[hash]; !exists {
		s.payloads[hash] = payload
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, hash string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payloads[hash]
	if !ok {
		return nil, fmt.Errorf("hash %q: %w", hash, ErrNotFound)
	}
	return p, nil
}
