// Package kvstore provides the string key-value store abstraction that
// durable computer persistence is built on.
//
// Implementations: [MemStore] (in-memory), [FileStore] (JSON file with an
// optional exclusive lock), [SQLStore] (MySQL or PostgreSQL table) and
// [Guard], a wrapper that disables a failing store instead of propagating
// its errors. The kvstoretest package holds the conformance suite every
// implementation runs.
package kvstore

import "errors"

// ErrLocked is returned when a store is already held by another process.
var ErrLocked = errors.New("store is locked by another process")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is a flat string → string map. Keys are opaque to the store.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is
	// absent; err is reserved for backend failures.
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is a no-op.
	Remove(key string) error

	// Keys returns every key starting with prefix, sorted ascending.
	Keys(prefix string) ([]string, error)

	// Close releases the store's resources (locks, connections).
	Close() error
}
