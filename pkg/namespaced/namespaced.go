// Package namespaced wraps a staged-shaped store with a key-prefixing
// view, so several logical tenants can share one commit log under
// "ns/key" addressing without the core ever knowing namespaces exist.
package namespaced

import (
	"strings"

	"github.com/ashenfad/kvgit/pkg/merge"
	"github.com/ashenfad/kvgit/pkg/staged"
)

// Backing is the surface namespaced needs from whatever it wraps: a
// *staged.Staged, or another *Namespaced for nesting namespaces inside
// namespaces.
type Backing interface {
	Get(key string) (any, bool)
	GetMany(keys []string) map[string]any
	Keys() []string
	Contains(key string) bool
	Set(key string, value any)
	Remove(key string)
	SetMergeFn(key string, fn merge.TypedFn)
	SetDefaultMerge(fn merge.TypedFn)
	HasChanges() bool
}

// rooted is implemented by anything namespaced can unwrap down to the
// underlying *staged.Staged for flushing, since Commit's options are a
// staged-level concept a namespace wrapper has no business owning.
type rooted interface {
	Root() *staged.Staged
}

// Namespaced prefixes every key it touches on the wrapped Backing with
// "<ns>/", so reads/writes/enumeration behave as if the namespace were
// its own independent store.
type Namespaced struct {
	backing Backing
	ns      string
	root    *staged.Staged
}

// New wraps backing with namespace ns. ns must be non-empty and must not
// contain "/". backing is either a *staged.Staged (the common case) or
// another *Namespaced, to nest namespaces inside namespaces.
func New(backing Backing, ns string) *Namespaced {
	n := &Namespaced{backing: backing, ns: ns}
	switch b := any(backing).(type) {
	case *staged.Staged:
		n.root = b
	case rooted:
		n.root = b.Root()
	}
	return n
}

// Root returns the underlying *staged.Staged this namespace ultimately
// reads and writes through, for callers that need to flush a Commit.
func (n *Namespaced) Root() *staged.Staged { return n.root }

func (n *Namespaced) full(key string) string {
	return n.ns + "/" + key
}

// Get reads key within this namespace.
func (n *Namespaced) Get(key string) (any, bool) {
	return n.backing.Get(n.full(key))
}

// GetMany reads several keys within this namespace in one call,
// returning them under their namespace-relative names.
func (n *Namespaced) GetMany(keys []string) map[string]any {
	full := make([]string, len(keys))
	fullToShort := make(map[string]string, len(keys))
	for i, k := range keys {
		fk := n.full(k)
		full[i] = fk
		fullToShort[fk] = k
	}
	raw := n.backing.GetMany(full)
	out := make(map[string]any, len(raw))
	for fk, v := range raw {
		out[fullToShort[fk]] = v
	}
	return out
}

// Contains reports whether key exists within this namespace.
func (n *Namespaced) Contains(key string) bool {
	return n.backing.Contains(n.full(key))
}

// Set stages key=value within this namespace.
func (n *Namespaced) Set(key string, value any) {
	n.backing.Set(n.full(key), value)
}

// Remove stages key's removal within this namespace.
func (n *Namespaced) Remove(key string) {
	n.backing.Remove(n.full(key))
}

// SetMergeFn registers a typed merge function for a namespace-relative
// key, translated to the backing's fully-qualified key space.
func (n *Namespaced) SetMergeFn(key string, fn merge.TypedFn) {
	n.backing.SetMergeFn(n.full(key), fn)
}

// SetDefaultMerge registers the fallback merge function for this
// namespace's keys. Because the backing store has no notion of
// namespaces, this in practice sets the backing's single default, which
// is only correct when one namespace owns the whole backing; callers
// sharing a backing across namespaces should prefer per-key SetMergeFn
// or a default keyed off a namespace-aware combinator.
func (n *Namespaced) SetDefaultMerge(fn merge.TypedFn) {
	n.backing.SetDefaultMerge(fn)
}

// HasChanges reports whether any Set/Remove calls are pending anywhere
// on the backing, not just within this namespace — the backing has no
// way to scope pending-change tracking by namespace.
func (n *Namespaced) HasChanges() bool { return n.backing.HasChanges() }

// Keys lists every key visible within this namespace, with the "ns/"
// prefix stripped.
func (n *Namespaced) Keys() []string {
	prefix := n.ns + "/"
	var out []string
	for _, k := range n.backing.Keys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out = append(out, rest)
		}
	}
	return out
}

// ChildKeys lists the immediate child path segments under path within
// this namespace (path == "" for the namespace root), the way a
// directory listing would — "a/b/c" under path "a" yields "b", not
// "b/c".
func (n *Namespaced) ChildKeys(path string) []string {
	prefix := n.ns + "/"
	if path != "" {
		prefix += path + "/"
	}
	seen := map[string]bool{}
	var out []string
	for _, k := range n.backing.Keys() {
		rest, ok := strings.CutPrefix(k, prefix)
		if !ok || rest == "" {
			continue
		}
		child := rest
		if i := strings.Index(rest, "/"); i >= 0 {
			child = rest[:i]
		}
		if !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
	}
	return out
}

// DescendantKeys lists every key under path within this namespace,
// namespace-relative, including keys nested arbitrarily deep.
func (n *Namespaced) DescendantKeys(path string) []string {
	prefix := n.ns + "/"
	if path != "" {
		prefix += path + "/"
	}
	var out []string
	for _, k := range n.backing.Keys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out = append(out, joinPath(path, rest))
		}
	}
	return out
}

func joinPath(path, rest string) string {
	if path == "" {
		return rest
	}
	return path + "/" + rest
}

// Namespace returns the namespace prefix this view operates under.
func (n *Namespaced) Namespace() string { return n.ns }
