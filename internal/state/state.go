// Package state persists the engine's durable key-value state: the flow
// context, allow-list records, and the active rule bits. The engine
// writes through on every mutation and reloads at construction, so the
// guard survives process restarts.
package state

import (
	"context"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
)

// Record kinds for allow-list entries.
const (
	KindSender  = "sender"
	KindPattern = "pattern"
)

// ContextRow is the persisted flow context.
type ContextRow struct {
	Fingerprint fingerprint.Hash
	Depth       uint64
	TxID        fingerprint.Hash
}

// AllowRecord is one persisted allow-list entry. Key is the sender
// identity for KindSender and the hex fingerprint for KindPattern.
type AllowRecord struct {
	Kind       string
	Key        string
	Permitted  bool
	LastChange int64
}

// Backend is the durable store the engine writes through to.
// Implementations must be safe for concurrent use.
type Backend interface {
	// SaveContext upserts the single flow-context row.
	SaveContext(ctx context.Context, row ContextRow) error

	// LoadContext returns the persisted context, or nil if none exists.
	LoadContext(ctx context.Context) (*ContextRow, error)

	// SaveAllowRecord upserts one allow-list record.
	SaveAllowRecord(ctx context.Context, rec AllowRecord) error

	// ListAllowRecords returns all records of the given kind.
	ListAllowRecords(ctx context.Context, kind string) ([]AllowRecord, error)

	// SaveRules upserts the active rule bits.
	SaveRules(ctx context.Context, bits uint8) error

	// LoadRules returns the persisted rule bits and whether any were stored.
	LoadRules(ctx context.Context) (uint8, bool, error)

	// Close releases resources. Idempotent.
	Close() error
}
