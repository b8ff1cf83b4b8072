package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agrotrace/agrotrace/pkg/canonical"
)

// ZeroHash is the previous-hash sentinel of the first block in the ledger.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event types recorded on the ledger. The vocabulary is open: the store and
// the genealogy resolver treat event types as opaque strings.
const (
	EventGenesis           = "GENESIS"
	EventTransportPickup   = "TRANSPORT_PICKUP"
	EventTransportDelivery = "TRANSPORT_DELIVERY"
	EventTransformation    = "TRANSFORMATION"
	EventSale              = "SALE"
)

// Participant roles. Signer resolution and the HTTP role checks use these;
// the ledger itself stores whatever role string it is given.
const (
	RoleProducer    = "Producer"
	RoleTransporter = "Transporter"
	RoleProcessor   = "Processor"
	RoleRetailer    = "Retailer"
)

// signerWallets is the static role→identifier table. This is deliberately not
// public-key cryptography: the signer is an accountability label, not a proof.
var signerWallets = map[string]string{
	RoleProducer:    "0xProducerAddressA1B2",
	RoleTransporter: "0xTransporterAddressC3D4",
	RoleProcessor:   "0xProcessorAddressE5F6",
	RoleRetailer:    "0xRetailerAddressG7H8",
}

// SignerUnknown is the signer recorded for roles outside the static table.
const SignerUnknown = "0xUnknown"

// SignerFor resolves a role to its static signer identifier.
func SignerFor(role string) string {
	if s, ok := signerWallets[role]; ok {
		return s
	}
	return SignerUnknown
}

// Input is one parent batch consumed by an aggregation or transformation
// event. Inputs participate in the block seal, so recorded genealogy cannot
// be rewritten without invalidating the block hash.
type Input struct {
	BatchID    string  `json:"batch_id"`
	QuantityKG float64 `json:"quantity_kg,omitempty"`
}

// Block is one immutable, hash-sealed record of a single event concerning a
// batch. A batch accumulates many blocks over its lifecycle; only BlockHash
// is unique.
type Block struct {
	Index        int             `json:"index"`
	BatchID      string          `json:"batch_id"`
	DataHash     string          `json:"data_hash"`
	PreviousHash string          `json:"previous_hash"`
	BlockHash    string          `json:"block_hash"`
	Signer       string          `json:"signer"`
	Role         string          `json:"role"`
	EventType    string          `json:"event_type"`
	Inputs       []Input         `json:"inputs,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Seal computes the block hash: SHA-256 over the deterministic concatenation
// of the identifying fields, extended with the canonical JSON of inputs when
// any are present. It is a pure function of its arguments; recomputing it
// from a stored block must reproduce the stored BlockHash.
func Seal(batchID, dataHash, previousHash, signer, eventType string, inputs []Input) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", batchID, dataHash, previousHash, signer, eventType)
	if len(inputs) > 0 {
		enc, err := canonical.Marshal(inputs)
		if err != nil {
			return "", fmt.Errorf("seal inputs: %w", err)
		}
		h.Write([]byte{'|'})
		h.Write(enc)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Reseal recomputes the block hash from the stored fields. Verify uses it for
// tamper detection.
func (b *Block) Reseal() (string, error) {
	return Seal(b.BatchID, b.DataHash, b.PreviousHash, b.Signer, b.EventType, b.Inputs)
}
