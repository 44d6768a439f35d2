package kvstore

import (
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory Store backed by a map. It is exported for use
// as a test double in cross-package tests and as the store behind
// non-durable sessions. It is safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	data   map[string]string
	closed bool
}

// NewMemStore returns a new empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

// NewMemStoreFrom returns a MemStore seeded with a copy of data. Used by
// FileStore to restore state from disk.
func NewMemStoreFrom(data map[string]string) *MemStore {
	m := NewMemStore()
	for k, v := range data {
		m.data[k] = v
	}
	return m
}

// snapshot returns a copy of the map. Caller must hold m.mu.
func (m *MemStore) snapshot() map[string]string {
	cp := make(map[string]string, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return cp
}

// Get returns the value stored under key.
func (m *MemStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	return nil
}

// Remove deletes key.
func (m *MemStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

// Keys returns every key with the given prefix, sorted.
func (m *MemStore) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close marks the store closed. Subsequent operations return ErrClosed.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
