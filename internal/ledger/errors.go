package ledger

import "errors"

// ErrIntegrity is the base class of append failures that violate the hash
// chain. Both ErrStaleTail and ErrDuplicateHash match it via errors.Is.
var ErrIntegrity = errors.New("ledger integrity violation")

// ErrStaleTail is returned by Append when the block's previous hash no longer
// matches the ledger tail: another writer appended first. Recoverable by
// rebuilding the block from a fresh tail read.
var ErrStaleTail = integrityError("stale tail")

// ErrDuplicateHash is returned by Append when a block with the same block
// hash already exists.
var ErrDuplicateHash = integrityError("duplicate block hash")

// ErrNotFound is returned when a block lookup by index matches nothing.
var ErrNotFound = errors.New("block not found")

type wrappedIntegrity struct {
	msg string
}

func integrityError(msg string) error {
	return &wrappedIntegrity{msg: msg}
}

func (e *wrappedIntegrity) Error() string { return "ledger integrity violation: " + e.msg }

func (e *wrappedIntegrity) Unwrap() error { return ErrIntegrity }
