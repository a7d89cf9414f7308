// Package allowlist implements a keyed allow/deny store with a
// same-instant grace window. Removal is a soft delete: the record stays
// queryable with permitted=false and the instant of removal, and a lookup
// racing that removal within the same instant still passes. One instant
// later the removal is strictly enforced.
package allowlist

// Record is the stored state for one key.
type Record struct {
	Permitted  bool
	LastChange int64 // instant of removal; meaningless while permitted
}

// List is a generic allow-list keyed by K.
// Not safe for concurrent mutation; the engine serializes access.
type List[K comparable] struct {
	records map[K]Record
}

// New creates an empty List.
func New[K comparable]() *List[K] {
	return &List[K]{records: make(map[K]Record)}
}

// Add grants the given keys. Grants are absolute: no grace timestamp is kept.
func (l *List[K]) Add(keys ...K) {
	for _, k := range keys {
		l.records[k] = Record{Permitted: true}
	}
}

// Remove revokes the given keys at the given instant.
// The record is kept (soft delete) so the key remains queryable.
func (l *List[K]) Remove(now int64, keys ...K) {
	for _, k := range keys {
		l.records[k] = Record{Permitted: false, LastChange: now}
	}
}

// Restore reinstates a persisted record verbatim. Used when loading
// durable state at engine start.
func (l *List[K]) Restore(key K, rec Record) {
	l.records[key] = rec
}

// Allowed reports whether key passes at the given instant.
// A key removed at exactly this instant still passes (grace window for
// in-flight validation racing the removal).
func (l *List[K]) Allowed(key K, now int64) bool {
	rec, ok := l.records[key]
	if !ok {
		return false
	}
	if rec.Permitted {
		return true
	}
	return rec.LastChange == now
}

// Get returns the record for key, if present.
func (l *List[K]) Get(key K) (Record, bool) {
	rec, ok := l.records[key]
	return rec, ok
}

// Snapshot returns a copy of all records, permitted and removed alike.
func (l *List[K]) Snapshot() map[K]Record {
	out := make(map[K]Record, len(l.records))
	for k, v := range l.records {
		out[k] = v
	}
	return out
}

// Len returns the number of records, including soft-deleted ones.
func (l *List[K]) Len() int { return len(l.records) }
