// Package fingerprint implements the rolling call-flow fingerprint.
// A fingerprint is a SHA-256 fold over a sequence of signed routine
// identifiers (positive = entry, negative = exit). The fold order is
// fixed: the identifier is hashed before the prior fingerprint. Changing
// either the seed or the fold order invalidates every registered pattern,
// so both are versioned through the seed tag.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Hash is a fixed-width call-flow fingerprint.
type Hash [sha256.Size]byte

// seedTag versions the pattern registry. Bumping it orphans all
// previously registered patterns.
const seedTag = "flowguard/pattern/v1"

// Seed is the baseline fingerprint: the value a flow context starts from
// and resets to. It is derived from a domain tag so it is never equal to
// the zero Hash, keeping "baseline" distinguishable from "uninitialized".
var Seed = Hash(sha256.Sum256([]byte(seedTag)))

// Fold absorbs one signed routine identifier into a prior fingerprint.
func Fold(id int64, prior Hash) Hash {
	var buf [8 + sha256.Size]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(id))
	copy(buf[8:], prior[:])
	return sha256.Sum256(buf[:])
}

// FoldSequence folds a whole signed-id sequence starting from Seed.
// This is how admin tooling computes the fingerprint to register for a
// call-flow pattern like [1, -1].
func FoldSequence(ids []int64) Hash {
	h := Seed
	for _, id := range ids {
		h = Fold(id, h)
	}
	return h
}

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the uninitialized zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Parse decodes a hex-encoded fingerprint.
func Parse(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("fingerprint: invalid hex %q: %w", s, err)
	}
	if len(b) != sha256.Size {
		return h, fmt.Errorf("fingerprint: expected %d bytes, got %d", sha256.Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}
