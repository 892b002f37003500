// Package staged buffers typed writes in memory and flushes them to a
// *versioned.View as a single commit, so callers don't pay a backend
// round trip per Set/Remove. Values are encoded to bytes only at Commit
// time.
package staged

import (
	"encoding/json"

	"github.com/ashenfad/kvgit/pkg/merge"
	"github.com/ashenfad/kvgit/pkg/versioned"
)

// Encoder turns a staged value into bytes for storage.
type Encoder func(value any) ([]byte, error)

// Decoder turns stored bytes back into a value.
type Decoder func(raw []byte) (any, error)

func jsonEncode(value any) ([]byte, error) { return json.Marshal(value) }

func jsonDecode(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// View is the surface Staged needs from whatever sits underneath it: a
// plain *versioned.View, or a *gc.GC, which embeds one and overrides only
// Commit to add water-mark rebasing. Both satisfy this interface without
// pkg/staged importing pkg/gc, so a caller can hand either to New and get
// the same buffered-write behavior either way.
type View interface {
	Get(key string) ([]byte, bool)
	Keys() []string
	Contains(key string) bool
	Commit(updates map[string][]byte, removals map[string]bool, opts versioned.CommitOptions) (*versioned.MergeResult, error)
	CreateBranch(name, at string) (*versioned.View, error)
	Checkout(commitID, branch string) (*versioned.View, bool)
	ListBranches() []string
	Refresh() error
}

// Staged is a buffered write layer over a View (a *versioned.View or a
// GC-wrapped one).
type Staged struct {
	view    View
	encoder Encoder
	decoder Decoder

	updates  map[string]any
	removals map[string]bool
	cache    map[string]any

	mergeFns     map[string]merge.TypedFn
	defaultMerge merge.TypedFn
}

// New wraps view with a staging buffer. A nil encoder/decoder pair
// defaults to JSON.
func New(view View, encoder Encoder, decoder Decoder) *Staged {
	if encoder == nil {
		encoder = jsonEncode
	}
	if decoder == nil {
		decoder = jsonDecode
	}
	return &Staged{
		view:     view,
		encoder:  encoder,
		decoder:  decoder,
		updates:  map[string]any{},
		removals: map[string]bool{},
		cache:    map[string]any{},
		mergeFns: map[string]merge.TypedFn{},
	}
}

// View returns the underlying View (a *versioned.View or a *gc.GC).
func (s *Staged) View() View { return s.view }

// Get returns a value, checking staged changes before the committed
// view and caching decoded committed values.
func (s *Staged) Get(key string) (any, bool) {
	if s.removals[key] {
		return nil, false
	}
	if v, ok := s.updates[key]; ok {
		return v, true
	}
	if v, ok := s.cache[key]; ok {
		return v, true
	}
	raw, ok := s.view.Get(key)
	if !ok {
		return nil, false
	}
	value, err := s.decoder(raw)
	if err != nil {
		return nil, false
	}
	s.cache[key] = value
	return value, true
}

// GetMany returns every requested key that is visible in the current
// state (staged or committed).
func (s *Staged) GetMany(keys []string) map[string]any {
	result := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := s.Get(key); ok {
			result[key] = v
		}
	}
	return result
}

// Keys lists every key visible in the current state: committed keys
// minus staged removals, plus staged updates.
func (s *Staged) Keys() []string {
	seen := map[string]bool{}
	for _, key := range s.view.Keys() {
		if !s.removals[key] {
			seen[key] = true
		}
	}
	for key := range s.updates {
		seen[key] = true
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	return out
}

// Contains reports whether key is visible in the current state.
func (s *Staged) Contains(key string) bool {
	if s.removals[key] {
		return false
	}
	if _, ok := s.updates[key]; ok {
		return true
	}
	return s.view.Contains(key)
}

// Set stages key=value for the next Commit.
func (s *Staged) Set(key string, value any) {
	delete(s.removals, key)
	s.updates[key] = value
}

// Remove stages key's removal for the next Commit.
func (s *Staged) Remove(key string) {
	delete(s.updates, key)
	s.removals[key] = true
}

// SetMergeFn registers a typed merge function for a specific key.
func (s *Staged) SetMergeFn(key string, fn merge.TypedFn) { s.mergeFns[key] = fn }

// SetDefaultMerge registers the fallback typed merge function.
func (s *Staged) SetDefaultMerge(fn merge.TypedFn) { s.defaultMerge = fn }

func (s *Staged) wrapMergeFn(fn merge.TypedFn) merge.Fn {
	return func(old, ours, theirs []byte) ([]byte, error) {
		var oldVal, oursVal, theirsVal any
		var err error
		if old != nil {
			if oldVal, err = s.decoder(old); err != nil {
				return nil, err
			}
		}
		if ours != nil {
			if oursVal, err = s.decoder(ours); err != nil {
				return nil, err
			}
		}
		if theirs != nil {
			if theirsVal, err = s.decoder(theirs); err != nil {
				return nil, err
			}
		}
		merged, err := fn(oldVal, oursVal, theirsVal)
		if err != nil {
			return nil, err
		}
		return s.encoder(merged)
	}
}

// HasChanges reports whether any Set/Remove calls are pending.
func (s *Staged) HasChanges() bool {
	return len(s.updates) > 0 || len(s.removals) > 0
}

// Reset discards all staged changes and the read cache.
func (s *Staged) Reset() {
	s.updates = map[string]any{}
	s.removals = map[string]bool{}
	s.cache = map[string]any{}
}

// Commit encodes staged updates to bytes, wraps registered/per-call
// merge functions to the byte level, and flushes everything to the
// underlying view as one commit. On success the staging buffer and
// read cache are cleared.
func (s *Staged) Commit(opts CommitOptions) (*versioned.MergeResult, error) {
	var encodedUpdates map[string][]byte
	if len(s.updates) > 0 {
		encodedUpdates = make(map[string][]byte, len(s.updates))
		for key, value := range s.updates {
			raw, err := s.encoder(value)
			if err != nil {
				return nil, err
			}
			encodedUpdates[key] = raw
		}
	}

	var removals map[string]bool
	if len(s.removals) > 0 {
		removals = s.removals
	}

	effectiveFns := map[string]merge.TypedFn{}
	for key, fn := range s.mergeFns {
		effectiveFns[key] = fn
	}
	for key, fn := range opts.MergeFns {
		effectiveFns[key] = fn
	}
	effectiveDefault := opts.DefaultMerge
	if effectiveDefault == nil {
		effectiveDefault = s.defaultMerge
	}

	var byteFns map[string]merge.Fn
	if len(effectiveFns) > 0 {
		byteFns = make(map[string]merge.Fn, len(effectiveFns))
		for key, fn := range effectiveFns {
			byteFns[key] = s.wrapMergeFn(fn)
		}
	}
	var byteDefault merge.Fn
	if effectiveDefault != nil {
		byteDefault = s.wrapMergeFn(effectiveDefault)
	}

	result, err := s.view.Commit(encodedUpdates, removals, versioned.CommitOptions{
		OnConflict:   opts.OnConflict,
		MergeFns:     byteFns,
		DefaultMerge: byteDefault,
		Info:         opts.Info,
	})
	if err != nil {
		return nil, err
	}
	if result.Merged {
		s.Reset()
	}
	return result, nil
}

// CommitOptions configures a single Staged Commit call.
type CommitOptions struct {
	OnConflict   string
	MergeFns     map[string]merge.TypedFn
	DefaultMerge merge.TypedFn
	Info         map[string]any
}

// CreateBranch forks the underlying view onto a new branch, returning a
// fresh Staged with the same encoder/decoder.
func (s *Staged) CreateBranch(name string) (*Staged, error) {
	view, err := s.view.CreateBranch(name, "")
	if err != nil {
		return nil, err
	}
	return New(view, s.encoder, s.decoder), nil
}

// Checkout returns a new Staged at a historical commit, or ok=false if
// the commit is unknown.
func (s *Staged) Checkout(commitID, branch string) (*Staged, bool) {
	view, ok := s.view.Checkout(commitID, branch)
	if !ok {
		return nil, false
	}
	return New(view, s.encoder, s.decoder), true
}

// ListBranches lists every branch name in the store.
func (s *Staged) ListBranches() []string { return s.view.ListBranches() }

// Refresh reloads from HEAD and discards staged changes.
func (s *Staged) Refresh() error {
	if err := s.view.Refresh(); err != nil {
		return err
	}
	s.Reset()
	return nil
}
