package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all ledger instances sharing a database.
const advisoryLockKey = int64(7_240_115_889)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

const blockColumns = `idx, batch_id, data_hash, previous_hash, block_hash,
	 signer, role, event_type, inputs, content, timestamp`

// PostgresStore persists the block ledger to a PostgreSQL database.
// It implements the Store interface.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Tail implements Store.
func (s *PostgresStore) Tail(ctx context.Context) (*Block, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM blocks ORDER BY idx DESC LIMIT 1`)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	return b, nil
}

// Append implements Store.
// It acquires a PostgreSQL advisory lock, re-reads the chain tail, and
// inserts the block — all within a single transaction. A tail that moved
// between the caller's read and the insert surfaces as ErrStaleTail.
func (s *PostgresStore) Append(ctx context.Context, b *Block) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialise concurrent appends with a transaction-scoped advisory lock.
	// The lock is automatically released when the transaction ends.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	wantPrev, wantIdx := ZeroHash, 0
	var tailIdx int
	var tailHash string
	err = tx.QueryRow(ctx,
		"SELECT idx, block_hash FROM blocks ORDER BY idx DESC LIMIT 1",
	).Scan(&tailIdx, &tailHash)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Empty ledger: genesis expectations stand.
	case err != nil:
		return fmt.Errorf("read ledger tail: %w", err)
	default:
		wantPrev, wantIdx = tailHash, tailIdx+1
	}

	if b.PreviousHash != wantPrev || b.Index != wantIdx {
		return fmt.Errorf("append block %q at index %d: %w", b.BlockHash, b.Index, ErrStaleTail)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO blocks (`+blockColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.Index, b.BatchID, b.DataHash, b.PreviousHash, b.BlockHash,
		b.Signer, b.Role, b.EventType, inputsParam(b.Inputs), contentParam(b.Content), b.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("append block %q: %w", b.BlockHash, ErrDuplicateHash)
		}
		return fmt.Errorf("insert block: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit block tx: %w", err)
	}

	s.logger.Debug("block appended",
		zap.Int("idx", b.Index),
		zap.String("batch_id", b.BatchID),
		zap.String("event_type", b.EventType),
	)
	return nil
}

// ForEach implements Store. Rows are streamed from the cursor, so the whole
// ledger is never held in memory.
func (s *PostgresStore) ForEach(ctx context.Context, fn func(*Block) error) error {
	rows, err := s.pool.Query(ctx,
		`SELECT `+blockColumns+` FROM blocks ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return fmt.Errorf("scan block row: %w", err)
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ByBatch implements Store.
func (s *PostgresStore) ByBatch(ctx context.Context, batchID string) ([]*Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE batch_id = $1 ORDER BY idx ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query blocks for batch %q: %w", batchID, err)
	}
	defer rows.Close()

	var out []*Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan block row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, index int) (*Block, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE idx = $1`, index)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", index, err)
	}
	return b, nil
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM blocks").Scan(&n); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return n, nil
}

// Root implements Store.
func (s *PostgresStore) Root(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		"SELECT block_hash FROM blocks ORDER BY idx DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return ZeroHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}

// Verify implements Store. It streams all rows ordered by idx and validates
// the hash chain. O(n) in ledger length; may be slow for very large ledgers.
func (s *PostgresStore) Verify(ctx context.Context) error {
	i, prevHash := 0, ZeroHash
	return s.ForEach(ctx, func(b *Block) error {
		if err := verifyBlock(b, i, prevHash); err != nil {
			return err
		}
		i, prevHash = i+1, b.BlockHash
		return nil
	})
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*Block, error) {
	b := &Block{}
	var inputsJSON []byte
	err := row.Scan(
		&b.Index, &b.BatchID, &b.DataHash, &b.PreviousHash, &b.BlockHash,
		&b.Signer, &b.Role, &b.EventType, &inputsJSON, &b.Content, &b.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if len(inputsJSON) > 0 {
		if err := json.Unmarshal(inputsJSON, &b.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs: %w", err)
		}
	}
	return b, nil
}

// inputsParam maps an empty inputs list to SQL NULL so the stored form and
// the sealed form agree on "no inputs".
func inputsParam(inputs []Input) any {
	if len(inputs) == 0 {
		return nil
	}
	return inputs
}

// contentParam maps absent content to SQL NULL.
func contentParam(content []byte) any {
	if len(content) == 0 {
		return nil
	}
	return content
}
