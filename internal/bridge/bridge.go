// Package bridge provides the relational fallback lookup used by genealogy
// resolution: given a marketplace order's batch id, find the harvest origin
// recorded in the relational system of record. The bridge exists for batches
// created before genealogy metadata was embedded on the ledger, or by
// workflows that never persisted the link on-chain.
package bridge

import (
	"context"
	"strings"
)

// orderPrefix is the transaction/order batch-id namespace marker.
const orderPrefix = "ORDER-"

// orderKey strips the namespace prefix from an order batch id. The second
// return is false when the id is not in the order namespace.
func orderKey(orderBatchID string) (string, bool) {
	key := strings.TrimPrefix(orderBatchID, orderPrefix)
	return key, key != orderBatchID && key != ""
}

// StaticBridge is a map-backed bridge for tests and single-process demos.
// Keys are bare order ids (without the ORDER- prefix); values are the
// recorded harvest origin ids.
type StaticBridge struct {
	origins map[string]string
}

// NewStaticBridge creates a StaticBridge over the given origin table.
func NewStaticBridge(origins map[string]string) *StaticBridge {
	return &StaticBridge{origins: origins}
}

// FindOrigin implements genealogy.Bridge.
func (b *StaticBridge) FindOrigin(_ context.Context, orderBatchID string) (string, error) {
	key, ok := orderKey(orderBatchID)
	if !ok {
		return "", nil
	}
	return b.origins[key], nil
}
