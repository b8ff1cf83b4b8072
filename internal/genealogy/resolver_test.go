package genealogy_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agrotrace/agrotrace/internal/genealogy"
	"github.com/agrotrace/agrotrace/internal/ledger"
	"go.uber.org/zap"
)

var ctx = context.Background()

// stubBridge maps order batch ids to recorded harvest origins.
type stubBridge struct {
	origins map[string]string
	err     error
	calls   int
}

func (b *stubBridge) FindOrigin(_ context.Context, orderBatchID string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return b.origins[orderBatchID], nil
}

// mintFixture mints a block with a ticking clock so chronological order is
// deterministic in tests.
type mintFixture struct {
	t      *testing.T
	store  *ledger.MemoryStore
	minter *ledger.Minter
	tick   time.Time
}

func newFixture(t *testing.T) *mintFixture {
	t.Helper()
	f := &mintFixture{
		t:     t,
		store: ledger.NewMemoryStore(),
		tick:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.minter = ledger.NewMinter(f.store, zap.NewNop())
	f.minter.SetClock(func() time.Time {
		f.tick = f.tick.Add(time.Minute)
		return f.tick
	})
	return f
}

func (f *mintFixture) mint(batchID, eventType string, inputs []ledger.Input, content string) *ledger.Block {
	f.t.Helper()
	var raw json.RawMessage
	if content != "" {
		raw = json.RawMessage(content)
	}
	b, err := f.minter.Mint(ctx, ledger.RoleProducer, batchID, "dh-"+batchID+"-"+eventType, eventType, inputs, raw)
	if err != nil {
		f.t.Fatal(err)
	}
	return b
}

func hashes(entries []genealogy.Entry) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.BlockHash] = true
	}
	return out
}

func TestResolve_unknownBatchIsEmpty(t *testing.T) {
	f := newFixture(t)
	r := genealogy.NewResolver(f.store, &stubBridge{}, zap.NewNop())

	chain, err := r.Resolve(ctx, "LOTE-999")
	if err != nil {
		t.Fatalf("unknown batch must not error: %v", err)
	}
	if len(chain) != 0 {
		t.Errorf("expected empty chain, got %d entries", len(chain))
	}
}

func TestResolve_transformationFollowsInputs(t *testing.T) {
	f := newFixture(t)
	genesis := f.mint("LOTE-12", ledger.EventGenesis, nil, "")
	order := f.mint("ORDER-9", ledger.EventTransportDelivery, nil, `{"harvest_origin":"12"}`)
	proc := f.mint("LOTE-PROC-9", ledger.EventTransformation,
		[]ledger.Input{{BatchID: "ORDER-9", QuantityKG: 100}}, "")

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	chain, err := r.Resolve(ctx, "LOTE-PROC-9")
	if err != nil {
		t.Fatal(err)
	}

	got := hashes(chain)
	for _, want := range []*ledger.Block{genesis, order, proc} {
		if !got[want.BlockHash] {
			t.Errorf("chain missing block %s (%s)", want.BlockHash[:8], want.BatchID)
		}
	}
	if len(chain) != 3 {
		t.Errorf("expected 3 entries, got %d", len(chain))
	}
}

func TestResolve_bridgeFallbackForOrders(t *testing.T) {
	f := newFixture(t)
	genesis := f.mint("LOTE-12", ledger.EventGenesis, nil, "")
	order := f.mint("ORDER-50", ledger.EventTransportPickup, nil, `{"pickup_location":"Porto"}`)

	bridge := &stubBridge{origins: map[string]string{"ORDER-50": "12"}}
	r := genealogy.NewResolver(f.store, bridge, zap.NewNop())

	chain, err := r.Resolve(ctx, "ORDER-50")
	if err != nil {
		t.Fatal(err)
	}
	got := hashes(chain)
	if !got[order.BlockHash] || !got[genesis.BlockHash] {
		t.Errorf("expected both ORDER-50 and LOTE-12 blocks, got %d entries", len(chain))
	}
	if bridge.calls != 1 {
		t.Errorf("bridge called %d times, want 1", bridge.calls)
	}
}

func TestResolve_bridgeSkippedWhenChainHasParent(t *testing.T) {
	f := newFixture(t)
	f.mint("LOTE-12", ledger.EventGenesis, nil, "")
	f.mint("ORDER-50", ledger.EventTransportDelivery, nil, `{"harvest_origin":"12"}`)

	bridge := &stubBridge{origins: map[string]string{"ORDER-50": "12"}}
	r := genealogy.NewResolver(f.store, bridge, zap.NewNop())

	if _, err := r.Resolve(ctx, "ORDER-50"); err != nil {
		t.Fatal(err)
	}
	if bridge.calls != 0 {
		t.Errorf("bridge consulted despite on-chain parent (%d calls)", bridge.calls)
	}
}

func TestResolve_bridgeErrorIsNonFatal(t *testing.T) {
	f := newFixture(t)
	order := f.mint("ORDER-50", ledger.EventTransportPickup, nil, "")

	bridge := &stubBridge{err: errors.New("connection refused")}
	r := genealogy.NewResolver(f.store, bridge, zap.NewNop())

	chain, err := r.Resolve(ctx, "ORDER-50")
	if err != nil {
		t.Fatalf("bridge failure must not abort resolution: %v", err)
	}
	if len(chain) != 1 || chain[0].BlockHash != order.BlockHash {
		t.Errorf("expected just the order block, got %d entries", len(chain))
	}
}

func TestResolve_cycleTerminates(t *testing.T) {
	f := newFixture(t)
	a := f.mint("LOTE-A", ledger.EventTransformation, []ledger.Input{{BatchID: "LOTE-B"}}, "")
	b := f.mint("LOTE-B", ledger.EventTransformation, []ledger.Input{{BatchID: "LOTE-A"}}, "")

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	chain, err := r.Resolve(ctx, "LOTE-A")
	if err != nil {
		t.Fatal(err)
	}

	got := hashes(chain)
	if !got[a.BlockHash] || !got[b.BlockHash] {
		t.Error("cycle resolution missing a block")
	}
	if len(chain) != 2 {
		t.Errorf("expected each block exactly once, got %d entries", len(chain))
	}
}

func TestResolve_deduplicatesSharedAncestor(t *testing.T) {
	f := newFixture(t)
	shared := f.mint("LOTE-ROOT", ledger.EventGenesis, nil, "")
	f.mint("LOTE-L", ledger.EventTransformation, []ledger.Input{{BatchID: "LOTE-ROOT"}}, "")
	f.mint("LOTE-R", ledger.EventTransformation, []ledger.Input{{BatchID: "LOTE-ROOT"}}, "")
	f.mint("LOTE-TOP", ledger.EventTransformation,
		[]ledger.Input{{BatchID: "LOTE-L"}, {BatchID: "LOTE-R"}}, "")

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	chain, err := r.Resolve(ctx, "LOTE-TOP")
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for _, e := range chain {
		if e.BlockHash == shared.BlockHash {
			count++
		}
	}
	if count != 1 {
		t.Errorf("shared ancestor appears %d times, want 1", count)
	}
	if len(chain) != 4 {
		t.Errorf("expected 4 entries, got %d", len(chain))
	}
}

func TestResolve_ordersChronologicallyWithVisualIndex(t *testing.T) {
	f := newFixture(t)
	f.mint("LOTE-12", ledger.EventGenesis, nil, "")
	f.mint("ORDER-9", ledger.EventTransportPickup, nil, `{"harvest_origin":"12"}`)
	f.mint("LOTE-PROC-9", ledger.EventTransformation, []ledger.Input{{BatchID: "ORDER-9"}}, "")

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	chain, err := r.Resolve(ctx, "LOTE-PROC-9")
	if err != nil {
		t.Fatal(err)
	}

	for i, e := range chain {
		if e.VisualIndex != i+1 {
			t.Errorf("entry %d has visual index %d", i, e.VisualIndex)
		}
		if i > 0 && chain[i-1].Timestamp.After(e.Timestamp) {
			t.Errorf("entries not in chronological order at %d", i)
		}
	}
}

func TestResolve_idempotent(t *testing.T) {
	f := newFixture(t)
	f.mint("LOTE-12", ledger.EventGenesis, nil, "")
	f.mint("LOTE-PROC-9", ledger.EventTransformation, []ledger.Input{{BatchID: "LOTE-12"}}, "")

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	first, err := r.Resolve(ctx, "LOTE-PROC-9")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(ctx, "LOTE-PROC-9")
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("resolutions differ in size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].BlockHash != second[i].BlockHash {
			t.Errorf("resolutions differ at entry %d", i)
		}
	}
}

func TestResolve_malformedContentIgnored(t *testing.T) {
	f := newFixture(t)
	b := f.mint("LOTE-1", ledger.EventGenesis, nil, `"just a string"`)

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	chain, err := r.Resolve(ctx, "LOTE-1")
	if err != nil {
		t.Fatalf("malformed content must not abort traversal: %v", err)
	}
	if len(chain) != 1 || chain[0].BlockHash != b.BlockHash {
		t.Errorf("expected the single block, got %d entries", len(chain))
	}
}

func TestResolve_nestedOrderOrigin(t *testing.T) {
	f := newFixture(t)
	genesis := f.mint("LOTE-15", ledger.EventGenesis, nil, "")
	f.mint("ORDER-3", ledger.EventTransportDelivery, nil, `{"order":{"harvest_origin":15}}`)

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	chain, err := r.Resolve(ctx, "ORDER-3")
	if err != nil {
		t.Fatal(err)
	}
	if !hashes(chain)[genesis.BlockHash] {
		t.Error("nested order.harvest_origin reference was not followed")
	}
}

func TestResolve_legacyInputsInContentOnly(t *testing.T) {
	f := newFixture(t)
	parent := f.mint("ORDER-9", ledger.EventTransportDelivery, nil, "")
	f.mint("LOTE-PROC-9", ledger.EventTransformation, nil,
		`{"inputs":[{"batch_id":"ORDER-9","quantity_kg":100}]}`)

	r := genealogy.NewResolver(f.store, nil, zap.NewNop())
	chain, err := r.Resolve(ctx, "LOTE-PROC-9")
	if err != nil {
		t.Fatal(err)
	}
	if !hashes(chain)[parent.BlockHash] {
		t.Error("content-only inputs reference was not followed")
	}
}

func TestCache_roundTrip(t *testing.T) {
	c := genealogy.NewCache(time.Minute)

	if _, ok := c.Get("LOTE-1"); ok {
		t.Error("empty cache returned a hit")
	}

	chain := []genealogy.Entry{{Block: &ledger.Block{BatchID: "LOTE-1"}, VisualIndex: 1}}
	c.Set("LOTE-1", chain)
	got, ok := c.Get("LOTE-1")
	if !ok || len(got) != 1 {
		t.Fatal("expected a cache hit")
	}

	c.Invalidate("LOTE-1")
	if _, ok := c.Get("LOTE-1"); ok {
		t.Error("invalidated entry still cached")
	}
}

func TestCache_flushDropsEverything(t *testing.T) {
	c := genealogy.NewCache(time.Minute)
	c.Set("LOTE-1", []genealogy.Entry{{Block: &ledger.Block{BatchID: "LOTE-1"}, VisualIndex: 1}})
	c.Set("LOTE-2", []genealogy.Entry{{Block: &ledger.Block{BatchID: "LOTE-2"}, VisualIndex: 1}})

	c.Flush()

	if _, ok := c.Get("LOTE-1"); ok {
		t.Error("LOTE-1 survived the flush")
	}
	if _, ok := c.Get("LOTE-2"); ok {
		t.Error("LOTE-2 survived the flush")
	}
}

func TestCache_expiry(t *testing.T) {
	c := genealogy.NewCache(-time.Second) // everything is born expired
	c.Set("LOTE-1", nil)
	if _, ok := c.Get("LOTE-1"); ok {
		t.Error("expired entry returned as hit")
	}
	if n := c.Evict(); n != 1 {
		t.Errorf("Evict() = %d, want 1", n)
	}
}
