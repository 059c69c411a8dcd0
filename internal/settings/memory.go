package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]Setting
}

// NewMemoryStore returns an empty store; call Init to seed defaults.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Setting)}
}

// Init seeds missing default rows.
func (m *MemoryStore) Init(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, def := range Defaults {
		if _, ok := m.rows[def.Key]; !ok {
			m.rows[def.Key] = def
		}
	}
	return nil
}

// All returns every row in display order.
func (m *MemoryStore) All(_ context.Context) ([]Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Setting, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sortSettings(out)
	return out, nil
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[key]
	if !ok {
		return "", ErrNotFound
	}
	return row.Value, nil
}

// Update replaces the value of an existing key.
func (m *MemoryStore) Update(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return ErrNotFound
	}
	row.Value = value
	m.rows[key] = row
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
