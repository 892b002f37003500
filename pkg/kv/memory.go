package kv

import (
	"bytes"
	"sync"
)

// Memory is an in-memory Store guarded by a single RWMutex, the same
// locking shape the teacher's Store uses around its working-state map.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns a copy of the value for key, if present.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false
	}
	return copyBytes(v), true
}

// GetMany returns copies of every present key in keys.
func (m *Memory) GetMany(keys []string) map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			result[k] = copyBytes(v)
		}
	}
	return result
}

// Set stores a copy of value under key.
func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = copyBytes(value)
	return nil
}

// SetMany writes every entry under a single lock.
func (m *Memory) SetMany(kvs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range kvs {
		m.data[k] = copyBytes(v)
	}
	return nil
}

// Remove deletes key; a missing key is a no-op.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// RemoveMany deletes every key in keys.
func (m *Memory) RemoveMany(keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Keys returns a snapshot of every key currently stored.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// Contains reports whether key is present.
func (m *Memory) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

// Cas atomically swaps key to value if its current value equals expected.
// expected == nil means "key must not exist".
func (m *Memory) Cas(key string, value []byte, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.data[key]
	if expected == nil {
		if exists {
			return false, nil
		}
	} else if !exists || !bytes.Equal(current, expected) {
		return false, nil
	}

	m.data[key] = copyBytes(value)
	return true, nil
}

// Clear removes every key.
func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
