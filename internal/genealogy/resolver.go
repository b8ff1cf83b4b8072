// Package genealogy reconstructs the full ancestry of a batch from the block
// ledger: the transitive closure of parent batches reachable through sealed
// inputs, legacy harvest_origin references, and — when the ledger alone lacks
// the link — a bridge lookup into the relational system of record.
package genealogy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agrotrace/agrotrace/internal/ledger"
	"go.uber.org/zap"
)

// defaultBridgeTimeout bounds a single relational bridge lookup.
const defaultBridgeTimeout = 3 * time.Second

// Bridge looks up the recorded harvest origin of a marketplace order in the
// relational system of record. Implementations return an empty string, not an
// error, when no origin is recorded. *bridge.PostgresBridge satisfies this
// interface.
type Bridge interface {
	FindOrigin(ctx context.Context, orderBatchID string) (string, error)
}

// Entry is one block of a resolved chain, decorated with a dense 1-based
// display index. The index is assigned per resolution and never persisted.
type Entry struct {
	*ledger.Block
	VisualIndex int `json:"visual_index"`
}

// Resolver reconstructs batch genealogies. It performs only reads and is safe
// for concurrent and repeated use.
type Resolver struct {
	store         ledger.Store
	bridge        Bridge
	bridgeTimeout time.Duration
	logger        *zap.Logger
}

// NewResolver creates a Resolver over the given store. bridge may be nil, in
// which case the relational fallback is skipped.
func NewResolver(store ledger.Store, bridge Bridge, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:         store,
		bridge:        bridge,
		bridgeTimeout: defaultBridgeTimeout,
		logger:        logger,
	}
}

// SetBridgeTimeout overrides the per-lookup bridge timeout.
func (r *Resolver) SetBridgeTimeout(d time.Duration) {
	if d > 0 {
		r.bridgeTimeout = d
	}
}

// Resolve returns the deduplicated, chronologically ordered set of blocks
// describing the full ancestry of batchID. A batch with no blocks and no
// bridge hit resolves to an empty chain, not an error; only a failure of the
// ledger itself aborts the resolution.
func (r *Resolver) Resolve(ctx context.Context, batchID string) ([]Entry, error) {
	seen := make(map[string]*ledger.Block) // block hash → block
	visited := make(map[string]struct{})   // batch id cycle guard

	if err := r.walk(ctx, batchID, visited, seen); err != nil {
		return nil, err
	}

	blocks := make([]*ledger.Block, 0, len(seen))
	for _, b := range seen {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool {
		if !blocks[i].Timestamp.Equal(blocks[j].Timestamp) {
			return blocks[i].Timestamp.Before(blocks[j].Timestamp)
		}
		return blocks[i].Index < blocks[j].Index
	})

	entries := make([]Entry, len(blocks))
	for i, b := range blocks {
		entries[i] = Entry{Block: b, VisualIndex: i + 1}
	}
	return entries, nil
}

// walk is the depth-first traversal. visited guards against reference cycles;
// seen accumulates blocks keyed by hash, which deduplicates blocks reachable
// via multiple paths.
func (r *Resolver) walk(ctx context.Context, batchID string, visited map[string]struct{}, seen map[string]*ledger.Block) error {
	if _, done := visited[batchID]; done {
		return nil
	}
	visited[batchID] = struct{}{}

	myBlocks, err := r.store.ByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", batchID, err)
	}

	parentsFound := false
	for _, b := range myBlocks {
		seen[b.BlockHash] = b
		for _, ref := range parentRefs(b) {
			parentsFound = true
			if err := r.walk(ctx, ref.batchID, visited, seen); err != nil {
				return err
			}
		}
	}

	// Relational fallback: order batches minted before genealogy metadata was
	// embedded on-chain carry their harvest link only in the marketplace
	// records.
	if !parentsFound && strings.HasPrefix(batchID, OrderPrefix) && r.bridge != nil {
		if origin := r.findOrigin(ctx, batchID); origin != "" {
			if err := r.walk(ctx, normalizeOrigin(origin), visited, seen); err != nil {
				return err
			}
		}
	}

	return nil
}

// findOrigin queries the bridge under a bounded timeout. Lookup errors and
// timeouts are both treated as "no parent found"; the traversal continues.
func (r *Resolver) findOrigin(ctx context.Context, orderBatchID string) string {
	bctx, cancel := context.WithTimeout(ctx, r.bridgeTimeout)
	defer cancel()

	origin, err := r.bridge.FindOrigin(bctx, orderBatchID)
	if err != nil {
		r.logger.Warn("bridge lookup failed, continuing without parent",
			zap.String("batch_id", orderBatchID),
			zap.Error(err),
		)
		return ""
	}
	return origin
}
