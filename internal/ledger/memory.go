package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks []*Block
	byHash map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]struct{})}
}

// Tail implements Store.
func (s *MemoryStore) Tail(_ context.Context) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return nil, nil
	}
	return s.blocks[len(s.blocks)-1], nil
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, b *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHash[b.BlockHash]; exists {
		return fmt.Errorf("append block %q: %w", b.BlockHash, ErrDuplicateHash)
	}

	wantPrev, wantIdx := ZeroHash, 0
	if n := len(s.blocks); n > 0 {
		wantPrev = s.blocks[n-1].BlockHash
		wantIdx = n
	}
	if b.PreviousHash != wantPrev || b.Index != wantIdx {
		return fmt.Errorf("append block %q at index %d: %w", b.BlockHash, b.Index, ErrStaleTail)
	}

	s.blocks = append(s.blocks, b)
	s.byHash[b.BlockHash] = struct{}{}
	return nil
}

// ForEach implements Store. The snapshot taken under the read lock keeps a
// concurrent append from being observed mid-scan.
func (s *MemoryStore) ForEach(_ context.Context, fn func(*Block) error) error {
	s.mu.RLock()
	snapshot := s.blocks
	s.mu.RUnlock()

	for _, b := range snapshot {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

// ByBatch implements Store.
func (s *MemoryStore) ByBatch(_ context.Context, batchID string) ([]*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Block
	for _, b := range s.blocks {
		if b.BatchID == batchID {
			out = append(out, b)
		}
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, index int) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.blocks) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	return s.blocks[index], nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks), nil
}

// Root implements Store.
func (s *MemoryStore) Root(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return ZeroHash, nil
	}
	return s.blocks[len(s.blocks)-1].BlockHash, nil
}

// Verify implements Store. It walks the chain and checks that every block
// links to its predecessor and that every stored seal matches a recompute.
func (s *MemoryStore) Verify(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prevHash := ZeroHash
	for i, b := range s.blocks {
		if err := verifyBlock(b, i, prevHash); err != nil {
			return err
		}
		prevHash = b.BlockHash
	}
	return nil
}

// verifyBlock checks one block against its expected index and predecessor
// hash. Shared by both Store implementations.
func verifyBlock(b *Block, wantIndex int, wantPrev string) error {
	if b.Index != wantIndex {
		return fmt.Errorf("block %q has index %d, want %d", b.BlockHash, b.Index, wantIndex)
	}
	if b.PreviousHash != wantPrev {
		return fmt.Errorf("hash chain broken at index %d", b.Index)
	}
	seal, err := b.Reseal()
	if err != nil {
		return fmt.Errorf("reseal block %d: %w", b.Index, err)
	}
	if seal != b.BlockHash {
		return fmt.Errorf("block %d has invalid hash", b.Index)
	}
	return nil
}
