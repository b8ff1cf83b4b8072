package genealogy

import (
	"encoding/json"
	"strings"

	"github.com/agrotrace/agrotrace/internal/ledger"
)

// Batch id namespaces observed in practice. The ledger stores batch ids as
// opaque strings; only the resolver's normalization and bridge fallback key
// off these prefixes.
const (
	OriginPrefix = "LOTE-"
	OrderPrefix  = "ORDER-"
)

// refKind tags how a parent reference was recorded on the block.
type refKind int

const (
	// refAggregation is a parent listed in the block's inputs: many parents
	// merged into one output batch.
	refAggregation refKind = iota
	// refLegacyOrigin is a single-parent harvest_origin reference, written by
	// older workflows either at the content root or nested under "order".
	refLegacyOrigin
)

// parentRef is one normalized upstream reference extracted from a block.
type parentRef struct {
	kind    refKind
	batchID string
}

// parentRefs extracts every parent reference from a block in a single
// normalization pass. Sealed inputs are authoritative; the denormalized
// content copy only contributes the legacy harvest_origin forms. A malformed
// or non-object content payload contributes nothing.
func parentRefs(b *ledger.Block) []parentRef {
	var refs []parentRef

	for _, in := range b.Inputs {
		if in.BatchID != "" {
			refs = append(refs, parentRef{kind: refAggregation, batchID: in.BatchID})
		}
	}

	content := decodeContent(b.Content)

	// Blocks minted before inputs were sealed on-chain carried them only in
	// the payload copy.
	if len(b.Inputs) == 0 {
		if raw, ok := content["inputs"].([]any); ok {
			for _, item := range raw {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if id, ok := entry["batch_id"].(string); ok && id != "" {
					refs = append(refs, parentRef{kind: refAggregation, batchID: id})
				}
			}
		}
	}

	if origin, ok := legacyOrigin(content); ok {
		refs = append(refs, parentRef{kind: refLegacyOrigin, batchID: normalizeOrigin(origin)})
	}

	return refs
}

// decodeContent parses a block's denormalized payload copy. Anything that is
// not a JSON object is treated as having no parent references.
func decodeContent(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil
	}
	return content
}

// legacyOrigin finds a harvest_origin reference at the content root or nested
// under the "order" sub-document. The literal "N/A" placeholder counts as
// absent.
func legacyOrigin(content map[string]any) (string, bool) {
	v, ok := content["harvest_origin"]
	if !ok {
		if order, isMap := content["order"].(map[string]any); isMap {
			v, ok = order["harvest_origin"]
		}
	}
	if !ok || v == nil {
		return "", false
	}

	var origin string
	switch t := v.(type) {
	case string:
		origin = t
	case float64:
		// Numeric harvest primary keys round-trip through JSON as floats;
		// json.Marshal renders whole floats without a fraction part.
		origin = jsonNumber(t)
	default:
		return "", false
	}

	if origin == "" || origin == "N/A" {
		return "", false
	}
	return origin, true
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

// normalizeOrigin maps a bare harvest id into the origin-batch namespace.
// Already-prefixed ids pass through unchanged.
func normalizeOrigin(origin string) string {
	if strings.HasPrefix(origin, OriginPrefix) {
		return origin
	}
	return OriginPrefix + origin
}
