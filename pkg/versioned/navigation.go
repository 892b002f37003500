package versioned

import (
	"github.com/ashenfad/kvgit/pkg/branch"
	"github.com/ashenfad/kvgit/pkg/codec"
	"github.com/ashenfad/kvgit/pkg/graph"
	"github.com/ashenfad/kvgit/pkg/kv"
)

// Refresh reloads this view's state from the branch's current head.
func (v *View) Refresh() error {
	head, ok := branch.Get(v.store, v.br)
	if !ok {
		return ErrNoHead
	}
	v.loadCommit(head, true)
	return nil
}

// Checkout returns a new View at commitID on branch br (defaulting to
// this view's branch). Returns ok=false if commitID has no recorded
// keyset.
func (v *View) Checkout(commitID string, br string) (*View, bool) {
	if _, ok := v.store.Get(codec.CommitKeysetKey(commitID)); !ok {
		return nil, false
	}
	if br == "" {
		br = v.br
	}
	view, err := Open(v.store, br, commitID)
	if err != nil {
		return nil, false
	}
	return view, true
}

// CreateBranch forks commitID (defaulting to the current commit) onto a
// new branch name, returning a View on that branch.
func (v *View) CreateBranch(name string, at string) (*View, error) {
	target := at
	if target == "" {
		target = v.currentCommit
	}
	if at != "" {
		if _, ok := v.store.Get(codec.CommitKeysetKey(at)); !ok {
			return nil, ErrUnknownCommit
		}
	}
	if err := branch.Create(v.store, name, target); err != nil {
		return nil, err
	}
	return Open(v.store, name, target)
}

// DeleteBranch removes a branch's head record. Refuses to delete this
// view's own branch.
func (v *View) DeleteBranch(name string) error {
	if name == v.br {
		return ErrCannotDeleteCurrentBranch
	}
	return branch.Delete(v.store, name)
}

// SwitchBranch moves this view to a different branch in-place, loading
// that branch's head commit.
func (v *View) SwitchBranch(name string) error {
	head, ok := branch.Get(v.store, name)
	if !ok {
		return branch.ErrNotFound
	}
	v.br = name
	v.loadCommit(head, true)
	return nil
}

// Peek reads a key from another branch's head without switching this
// view or touching any metadata.
func (v *View) Peek(key string, br string) ([]byte, bool) {
	head, ok := branch.Get(v.store, br)
	if !ok {
		return nil, false
	}
	keyset := graph.Keyset(v.store, head)
	vk, ok := keyset[key]
	if !ok {
		return nil, false
	}
	return v.store.Get(vk)
}

// ResetTo points this view's branch head directly at commitID and
// reloads state from it. Returns false if commitID has no recorded
// keyset.
func (v *View) ResetTo(commitID string) (bool, error) {
	if _, ok := v.store.Get(codec.CommitKeysetKey(commitID)); !ok {
		return false, nil
	}
	if err := branch.Set(v.store, v.br, commitID); err != nil {
		return false, err
	}
	v.loadCommit(commitID, true)
	return true, nil
}

// History yields the commit chain from start (default: current commit),
// newest first. allParents selects full-DAG BFS over a linear
// first-parent walk.
func (v *View) History(start string, allParents bool) []string {
	if start == "" {
		start = v.currentCommit
	}
	return graph.History(v.store, start, allParents)
}

// Diff computes key-level differences between two commits.
func (v *View) Diff(commitA, commitB string) graph.Diff {
	return graph.DiffCommits(v.store, commitA, commitB)
}

// Parents returns the direct parents of commitID (default: current commit).
func (v *View) Parents(commitID string) []string {
	if commitID == "" {
		commitID = v.currentCommit
	}
	return graph.Parents(v.store, commitID)
}

// ListBranches lists every branch name in the store, sorted.
func (v *View) ListBranches() []string { return branch.List(v.store) }

// Branches lists every branch name in store, sorted. Exposed as a
// package-level function so it can be called before any View exists.
func Branches(store kv.Store) []string {
	return branch.List(store)
}

// CommitInfo retrieves the optional info blob recorded for commitID
// (default: current commit). Returns ok=false if none was recorded.
func (v *View) CommitInfo(commitID string) (map[string]any, bool) {
	target := commitID
	if target == "" {
		target = v.currentCommit
	}
	raw, ok := v.store.Get(codec.InfoKey(target))
	if !ok {
		return nil, false
	}
	var info map[string]any
	if err := codec.FromBytes(raw, &info); err != nil {
		return nil, false
	}
	return info, true
}
