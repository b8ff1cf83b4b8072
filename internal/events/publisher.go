// Package events streams minted-block receipts to downstream consumers
// (dashboards, notification pipelines). Publishing is best-effort and never
// on the mint critical path's failure surface.
package events

import (
	"context"

	"github.com/agrotrace/agrotrace/internal/ledger"
	"go.uber.org/zap"
)

// Publisher delivers minted blocks to an event stream.
type Publisher interface {
	// PublishBlock sends one minted block, keyed by its batch id.
	PublishBlock(ctx context.Context, b *ledger.Block) error

	// Close flushes and closes the underlying connection.
	Close() error
}

// NopPublisher discards all blocks. It is the default when no broker is
// configured.
type NopPublisher struct {
	logger *zap.Logger
}

// NewNopPublisher creates a NopPublisher.
func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

// PublishBlock implements Publisher.
func (p *NopPublisher) PublishBlock(_ context.Context, b *ledger.Block) error {
	p.logger.Debug("event publishing disabled, dropping block receipt",
		zap.String("block_hash", b.BlockHash),
	)
	return nil
}

// Close implements Publisher.
func (p *NopPublisher) Close() error { return nil }
