// Package ledger implements the append-only, hash-chained block ledger that
// records traceability events for agricultural batches.
//
// Every block seals its business fields together with the hash of the ledger
// tail at mint time, so the whole ledger encodes a single total order and any
// tampering is detectable via Verify. The chain starts from ZeroHash (64 hex
// zeros); the first block appended has index 0 and ZeroHash as its previous
// hash.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, for testing and development.
//   - PostgresStore: durable, for production use.
//
// Blocks are minted exclusively through the Minter, which owns the hash-chain
// invariant and retries appends that lose the race for the tail.
package ledger
