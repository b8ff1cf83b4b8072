// Package dossier stores the off-chain business payloads referenced by
// ledger blocks, keyed by their canonical content hash. The ledger itself
// keeps a denormalized copy on each block; this store is the system of record
// for payload retrieval by hash.
package dossier

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when no payload exists for a given hash.
var ErrNotFound = errors.New("dossier not found")

// Store persists dossier payloads by content hash.
// Both MemoryStore and PostgresStore implement this interface.
type Store interface {
	// Put stores a payload under its content hash. Storing the same hash
	// twice is a no-op: identical hash means identical canonical content.
	Put(ctx context.Context, hash string, payload json.RawMessage) error

	// Get returns the payload for a content hash, or ErrNotFound.
	Get(ctx context.Context, hash string) (json.RawMessage, error)
}
