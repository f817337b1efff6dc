// Package store provides the key-value record store used to persist saved
// networks, settings, the last-connected marker and encrypted credentials.
// Records are JSON-encoded values addressed by a string key.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when no record exists for a key.
var ErrNotFound = errors.New("record not found")

// Store is a key-value repository of JSON-encoded records.
type Store interface {
	// Get decodes the record stored at key into v.
	Get(ctx context.Context, key string, v any) error
	// Set replaces the record at key with v.
	Set(ctx context.Context, key string, v any) error
	// Delete removes the record at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Compile-time interface guards.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*Memory)(nil)
)

// Memory is an in-memory Store. The zero value is ready to use.
type Memory struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(_ context.Context, key string, v any) error {
	m.mu.Lock()
	data, ok := m.records[key]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode record %q: %w", key, err)
	}
	return nil
}

func (m *Memory) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string][]byte)
	}
	m.records[key] = data
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// Keys returns the keys currently stored, for tests and diagnostics.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	return keys
}
