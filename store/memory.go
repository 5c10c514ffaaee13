package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-process Store. The zero value is not usable; call
// NewMemory.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]string
	maxSize int
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMaxValueSize rejects writes of more than n bytes with
// ErrValueTooLarge. Zero means unlimited.
func WithMaxValueSize(n int) MemoryOption {
	return func(m *Memory) {
		m.maxSize = n
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{data: make(map[string]string)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	v, ok := m.data[key]
	m.mu.RUnlock()
	return v, ok, nil
}

func (m *Memory) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.maxSize > 0 && len(value) > m.maxSize {
		return fmt.Errorf("write %q (%d bytes): %w", key, len(value), ErrValueTooLarge)
	}
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
