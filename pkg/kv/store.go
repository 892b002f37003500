// Package kv defines the flat byte key-value contract that the commit
// graph and merge engine are built on, plus a handful of concrete
// backends implementing it.
package kv

import "errors"

// ErrKeyNotFound reports a missing key. No function in this package
// returns it; the Store interface reports absence with a nil/ok pair.
var ErrKeyNotFound = errors.New("kv: key not found")

// Store is a flat string -> bytes map with a linearisable compare-and-swap.
// Implementations must make Cas atomic with respect to themselves and to
// every other write on the same key; Get/Set/Remove need only be
// individually atomic per key.
type Store interface {
	// Get returns the value for key and true, or (nil, false) if absent.
	Get(key string) ([]byte, bool)

	// GetMany returns a mapping of only the keys that are present.
	GetMany(keys []string) map[string][]byte

	// Set stores value under key, overwriting any prior value.
	Set(key string, value []byte) error

	// SetMany writes every entry in kvs. Implementations should make this
	// atomic where the backing medium allows it; callers that need
	// durability guarantees beyond best-effort must check Store-specific
	// documentation.
	SetMany(kvs map[string][]byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// RemoveMany deletes every key in keys, idempotently.
	RemoveMany(keys []string) error

	// Keys enumerates every key currently in the store. Implementations
	// need not return a live snapshot.
	Keys() []string

	// Contains reports whether key is present.
	Contains(key string) bool

	// Cas atomically sets key to value iff the current value equals
	// expected. expected == nil means "key must be absent". Returns
	// whether the swap happened.
	Cas(key string, value []byte, expected []byte) (bool, error)

	// Clear removes every key. Intended for tests.
	Clear() error
}
