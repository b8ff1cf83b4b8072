package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// defaultMintRetries bounds how many times a mint rebuilds its block after
// losing the tail race to a concurrent writer.
const defaultMintRetries = 5

// Publisher receives successfully minted blocks for downstream consumers.
// Publishing is best-effort: a failed publish never fails the mint.
// *events.KafkaPublisher satisfies this interface.
type Publisher interface {
	PublishBlock(ctx context.Context, b *Block) error
}

// Minter builds and appends new blocks. It owns the hash-chain invariant:
// index assignment, previous-hash linkage, signer resolution, and the block
// seal all happen here, atomically with respect to other mints via the
// store's append contract.
type Minter struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
	retries   int
}

// NewMinter creates a Minter over the given store.
func NewMinter(store Store, logger *zap.Logger) *Minter {
	return &Minter{
		store:   store,
		logger:  logger,
		now:     time.Now,
		retries: defaultMintRetries,
	}
}

// SetPublisher attaches a downstream publisher for minted blocks.
func (m *Minter) SetPublisher(p Publisher) { m.publisher = p }

// SetClock overrides the timestamp source. Tests use this for deterministic
// ordering.
func (m *Minter) SetClock(now func() time.Time) { m.now = now }

// SetRetries overrides the stale-tail retry budget.
func (m *Minter) SetRetries(n int) {
	if n > 0 {
		m.retries = n
	}
}

// Mint creates, seals, and appends a new block for the given business facts.
// dataHash is the canonical content hash of the already-assembled dossier
// payload; content is an optional denormalized copy of that payload kept on
// the block for read-path convenience.
//
// A stale-tail append is retried from a fresh tail read, bounded by the retry
// budget. A mint is never partially applied: either the returned block is on
// the ledger, or the error describes why nothing was written.
func (m *Minter) Mint(ctx context.Context, role, batchID, dataHash, eventType string, inputs []Input, content json.RawMessage) (*Block, error) {
	if batchID == "" {
		return nil, errors.New("mint: batch id is required")
	}
	if dataHash == "" {
		return nil, errors.New("mint: data hash is required")
	}
	if eventType == "" {
		return nil, errors.New("mint: event type is required")
	}

	signer := SignerFor(role)

	var lastErr error
	for attempt := 0; attempt < m.retries; attempt++ {
		tail, err := m.store.Tail(ctx)
		if err != nil {
			return nil, fmt.Errorf("mint: read tail: %w", err)
		}

		index, prevHash := 0, ZeroHash
		if tail != nil {
			index, prevHash = tail.Index+1, tail.BlockHash
		}

		seal, err := Seal(batchID, dataHash, prevHash, signer, eventType, inputs)
		if err != nil {
			return nil, fmt.Errorf("mint: %w", err)
		}

		b := &Block{
			Index:        index,
			BatchID:      batchID,
			DataHash:     dataHash,
			PreviousHash: prevHash,
			BlockHash:    seal,
			Signer:       signer,
			Role:         role,
			EventType:    eventType,
			Inputs:       inputs,
			Content:      content,
			Timestamp:    m.now().UTC(),
		}

		if err := m.store.Append(ctx, b); err != nil {
			if errors.Is(err, ErrStaleTail) {
				m.logger.Debug("mint lost tail race, retrying",
					zap.String("batch_id", batchID),
					zap.Int("attempt", attempt+1),
				)
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("mint: %w", err)
		}

		m.logger.Info("block minted",
			zap.Int("idx", b.Index),
			zap.String("batch_id", b.BatchID),
			zap.String("event_type", b.EventType),
			zap.String("block_hash", b.BlockHash),
		)

		if m.publisher != nil {
			if err := m.publisher.PublishBlock(ctx, b); err != nil {
				m.logger.Warn("publish minted block", zap.Error(err))
			}
		}
		return b, nil
	}

	return nil, fmt.Errorf("mint: retries exhausted: %w", lastErr)
}
