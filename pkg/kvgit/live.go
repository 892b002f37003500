package kvgit

import (
	"encoding/json"

	"github.com/ashenfad/kvgit/pkg/kv"
)

// LiveEncoder turns a Live value into bytes for immediate storage.
type LiveEncoder func(value any) ([]byte, error)

// LiveDecoder turns stored bytes back into a value.
type LiveDecoder func(raw []byte) (any, error)

func liveJSONEncode(value any) ([]byte, error) { return json.Marshal(value) }

func liveJSONDecode(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Live is an immediate-write, unversioned typed map directly over a
// kv.Store: no commit log, no history, no branches. Every Set/Remove
// takes effect the moment it's called. Useful as throwaway scratch space
// (locks, ephemeral counters, presence flags) alongside a versioned store
// sharing the same backend, without polluting the commit graph.
type Live struct {
	store   kv.Store
	encoder LiveEncoder
	decoder LiveDecoder
}

// NewLive wraps store for immediate typed reads/writes. A nil
// encoder/decoder pair defaults to JSON.
func NewLive(store kv.Store, encoder LiveEncoder, decoder LiveDecoder) *Live {
	if encoder == nil {
		encoder = liveJSONEncode
	}
	if decoder == nil {
		decoder = liveJSONDecode
	}
	return &Live{store: store, encoder: encoder, decoder: decoder}
}

// Get decodes and returns the current value of key, if present.
func (l *Live) Get(key string) (any, bool) {
	raw, ok := l.store.Get(key)
	if !ok {
		return nil, false
	}
	value, err := l.decoder(raw)
	if err != nil {
		return nil, false
	}
	return value, true
}

// GetMany decodes and returns every present key among keys.
func (l *Live) GetMany(keys []string) map[string]any {
	raw := l.store.GetMany(keys)
	result := make(map[string]any, len(raw))
	for key, bytes := range raw {
		if value, err := l.decoder(bytes); err == nil {
			result[key] = value
		}
	}
	return result
}

// Set encodes value and writes it under key immediately.
func (l *Live) Set(key string, value any) error {
	raw, err := l.encoder(value)
	if err != nil {
		return err
	}
	return l.store.Set(key, raw)
}

// Remove deletes key immediately.
func (l *Live) Remove(key string) error {
	return l.store.Remove(key)
}

// Keys lists every key currently in the backing store.
func (l *Live) Keys() []string { return l.store.Keys() }

// Contains reports whether key is present.
func (l *Live) Contains(key string) bool { return l.store.Contains(key) }
