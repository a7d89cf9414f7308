package state

import (
	"context"
	"sync"
)

// MemoryBackend keeps all state in process memory. Used by tests, the
// dry-run CLI commands, and deployments that accept losing guard state
// on restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	flow    *ContextRow
	records map[string]AllowRecord // composite key kind+"\x00"+key
	rules   *uint8
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]AllowRecord)}
}

func recordKey(kind, key string) string { return kind + "\x00" + key }

// SaveContext stores a copy of the flow context.
func (m *MemoryBackend) SaveContext(_ context.Context, row ContextRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := row
	m.flow = &cp
	return nil
}

// LoadContext returns the stored flow context, or nil.
func (m *MemoryBackend) LoadContext(_ context.Context) (*ContextRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.flow == nil {
		return nil, nil
	}
	cp := *m.flow
	return &cp, nil
}

// SaveAllowRecord upserts one record.
func (m *MemoryBackend) SaveAllowRecord(_ context.Context, rec AllowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(rec.Kind, rec.Key)] = rec
	return nil
}

// ListAllowRecords returns all records of the given kind.
func (m *MemoryBackend) ListAllowRecords(_ context.Context, kind string) ([]AllowRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AllowRecord
	for _, rec := range m.records {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SaveRules stores the rule bits.
func (m *MemoryBackend) SaveRules(_ context.Context, bits uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := bits
	m.rules = &b
	return nil
}

// LoadRules returns the stored rule bits, if any.
func (m *MemoryBackend) LoadRules(_ context.Context) (uint8, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rules == nil {
		return 0, false, nil
	}
	return *m.rules, true, nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }
