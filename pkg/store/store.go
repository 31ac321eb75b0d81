// Package store is the persisted key-value storage behind the hub.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates the key has never been written.
var ErrNotFound = errors.New("store: not found")

// GlobalStateKey is the key the hub keeps its record under.
const GlobalStateKey = "globalWidgetState"

// Store is an opaque key-value store. Values are JSON-encoded.
type Store interface {
	Get(ctx context.Context, key string, v any) error
	Set(ctx context.Context, key string, v any) error
}

// MemoryStore keeps values in memory. Used in tests and with -ephemeral.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage

	// FailWrites makes Set return this error, for exercising storage failures.
	FailWrites error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]json.RawMessage)}
}

// Get decodes the value stored at key into v.
func (m *MemoryStore) Get(ctx context.Context, key string, v any) error {
	m.mu.RLock()
	raw, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Set replaces the value stored at key.
func (m *MemoryStore) Set(ctx context.Context, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.values[key] = raw
	return nil
}
