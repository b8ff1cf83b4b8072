package ledger

import "context"

// Store is the interface for the append-only block ledger.
// Both MemoryStore and PostgresStore implement this interface.
//
// Append is the only mutation in the contract; there is no update or delete.
// Reads may run concurrently with appends and must never observe a partially
// written block.
type Store interface {
	// Tail returns the block with the highest index, or nil if the ledger
	// is empty. The result reflects a single consistent snapshot.
	Tail(ctx context.Context) (*Block, error)

	// Append persists a new block. It fails with ErrDuplicateHash if a block
	// with the same block hash already exists, and with ErrStaleTail if the
	// block's previous hash does not match the current tail.
	Append(ctx context.Context, b *Block) error

	// ForEach streams every block in index order without materializing the
	// whole ledger. A non-nil error from fn stops the scan and is returned.
	ForEach(ctx context.Context, fn func(*Block) error) error

	// ByBatch returns all blocks whose batch id equals the argument, in
	// ledger order. An unknown batch id yields an empty slice, not an error.
	ByBatch(ctx context.Context, batchID string) ([]*Block, error)

	// Get returns the block at the given index, or ErrNotFound.
	Get(ctx context.Context, index int) (*Block, error)

	// Len returns the total number of blocks.
	Len(ctx context.Context) (int, error)

	// Root returns the block hash of the current tail, or ZeroHash when the
	// ledger is empty.
	Root(ctx context.Context) (string, error)

	// Verify walks the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error
}
