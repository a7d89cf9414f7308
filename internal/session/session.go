// Package session derives the transaction identity that the call-flow
// engine uses to detect session boundaries. The engine never stores
// session objects; it re-derives the identity on every entry hook and
// treats any change as the start of a new session.
package session

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
)

// Source yields the identity of the current execution session.
// The identity must be stable within one session and change across
// sessions; the engine compares successive values, nothing more.
type Source interface {
	Current() fingerprint.Hash
}

// Ambient derives the identity from three ambient inputs: a monotonic
// session sequence number, an origin label, and the session start instant
// in unix nanoseconds. Changing this derivation is a breaking change for
// every previously observed session identity, so the inputs are fixed.
type Ambient struct {
	sequence  uint64
	origin    string
	startNano int64
	current   fingerprint.Hash
}

// NewAmbient creates a source and stamps the first session.
func NewAmbient(origin string) *Ambient {
	a := &Ambient{}
	a.Advance(origin)
	return a
}

// Advance starts a new session: bumps the sequence, restamps the start
// instant, and records the origin. Call this at each transaction boundary
// (the SDK middleware advances once per request).
func (a *Ambient) Advance(origin string) fingerprint.Hash {
	a.sequence++
	a.origin = origin
	a.startNano = time.Now().UnixNano()
	a.current = derive(a.sequence, a.origin, a.startNano)
	return a.current
}

// Current returns the identity of the session in progress.
func (a *Ambient) Current() fingerprint.Hash {
	return a.current
}

// derive is the pure identity function over the ambient inputs.
func derive(sequence uint64, origin string, startNano int64) fingerprint.Hash {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], sequence)
	h.Write(buf[:])
	h.Write([]byte(origin))
	binary.BigEndian.PutUint64(buf[:], uint64(startNano))
	h.Write(buf[:])

	var out fingerprint.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Fixed is a Source pinned to one identity. Used by tests and by the
// simulator, where session boundaries are scripted explicitly.
type Fixed struct {
	ID fingerprint.Hash
}

// Current returns the pinned identity.
func (f *Fixed) Current() fingerprint.Hash { return f.ID }
