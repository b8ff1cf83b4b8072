// Package canonical provides deterministic content hashing of structured
// payloads. Two logically-equal payloads hash identically regardless of the
// key order they were presented in; the digest is the lowercase hex SHA-256
// of the canonical JSON form.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash serializes v canonically and returns the hex SHA-256 of the result.
// encoding/json already emits map keys in sorted order and uses a stable
// numeric formatting, so a single marshal pass is canonical for maps and
// structs alike. Raw JSON input is normalized through an intermediate
// decode so that whitespace and key order do not leak into the digest.
func Hash(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("canonicalize raw payload: %w", err)
		}
		v = decoded
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	// Encoder appends a trailing newline that must not reach the hash.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// HashBytes returns the hex-encoded SHA-256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
