package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresBridge reads the marketplace order records maintained by the
// surrounding CRUD application. It implements genealogy.Bridge.
type PostgresBridge struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresBridge creates a PostgresBridge backed by the given pool.
func NewPostgresBridge(pool *pgxpool.Pool, logger *zap.Logger) *PostgresBridge {
	return &PostgresBridge{pool: pool, logger: logger}
}

// FindOrigin implements genealogy.Bridge. A missing order, an order without a
// recorded origin, and an id outside the order namespace all yield an empty
// string with no error.
func (b *PostgresBridge) FindOrigin(ctx context.Context, orderBatchID string) (string, error) {
	key, ok := orderKey(orderBatchID)
	if !ok {
		return "", nil
	}

	var origin *string
	err := b.pool.QueryRow(ctx,
		"SELECT harvest_id FROM marketplace_orders WHERE order_id = $1", key,
	).Scan(&origin)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bridge lookup for %q: %w", orderBatchID, err)
	}
	if origin == nil {
		return "", nil
	}

	b.logger.Debug("bridge resolved order origin",
		zap.String("order", orderBatchID),
		zap.String("harvest_id", *origin),
	)
	return *origin, nil
}
