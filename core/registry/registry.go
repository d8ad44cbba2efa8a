// core/registry/registry.go

// Package registry maps a branch's structural identity to a stable short
// content hash used as a join key against stored realizations.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestLen is the length in hex characters of a branch digest.
const DigestLen = 12

// Registry resolves branch identities to digests. Implementations must be
// deterministic and stable across runs.
type Registry interface {
	Lookup(identity string) (string, error)
}

// Content is the content-addressed registry: the digest is derived from the
// identity alone, so it never needs persisted state and cannot miss.
type Content struct{}

func (Content) Lookup(identity string) (string, error) {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:DigestLen/2]), nil
}
