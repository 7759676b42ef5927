package store

import (
	"context"
	"sync"

	"certagent/internal/domain"
)

// Memory keeps records in process memory.
type Memory struct {
	mu   sync.RWMutex
	data map[domain.StorageKey][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[domain.StorageKey][]byte)}
}

func (m *Memory) Get(ctx context.Context, key domain.StorageKey) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, readErr("memory", key, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(ctx context.Context, key domain.StorageKey, value []byte) error {
	if err := ctx.Err(); err != nil {
		return writeErr("memory", "set", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Remove(ctx context.Context, key domain.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return writeErr("memory", "remove", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

var _ domain.KeyStorage = (*Memory)(nil)
