// Package branch implements the branch registry (C5): named mutable
// pointers from a branch name to a commit id, held under reserved keys in
// a kv.Store rather than files — the store's Cas is the only
// synchronization primitive, matching the teacher's file-based
// BranchManager/HeadManager but backed by the generic kv.Store contract
// instead of the filesystem.
package branch

import (
	"errors"
	"sort"
	"strings"

	"github.com/ashenfad/kvgit/pkg/codec"
	"github.com/ashenfad/kvgit/pkg/kv"
)

var (
	// ErrInvalidName is returned for a branch name that is empty or
	// contains a '/'.
	ErrInvalidName = errors.New("branch: invalid name")
	// ErrExists is returned by Create when the branch already exists.
	ErrExists = errors.New("branch: already exists")
	// ErrNotFound is returned when an operation targets a branch with no
	// recorded head.
	ErrNotFound = errors.New("branch: not found")
)

// ValidateName enforces the branch-name rules: non-empty, no '/'.
func ValidateName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return ErrInvalidName
	}
	return nil
}

// Get returns the commit id a branch currently points to.
func Get(store kv.Store, name string) (string, bool) {
	raw, ok := store.Get(codec.BranchHeadKey(name))
	if !ok {
		return "", false
	}
	var commitID string
	if err := codec.FromBytes(raw, &commitID); err != nil {
		return "", false
	}
	return commitID, true
}

// Create points a new branch name at commitID via a create-only Cas
// (expected == nil). Returns ErrExists if the name is already taken.
func Create(store kv.Store, name, commitID string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	value, err := codec.ToBytes(commitID)
	if err != nil {
		return err
	}
	ok, err := store.Cas(codec.BranchHeadKey(name), value, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// Cas advances name from expectedCommitID to newCommitID, linearisable
// with any other writer racing the same branch head.
func Cas(store kv.Store, name, newCommitID, expectedCommitID string) (bool, error) {
	expected, err := codec.ToBytes(expectedCommitID)
	if err != nil {
		return false, err
	}
	newValue, err := codec.ToBytes(newCommitID)
	if err != nil {
		return false, err
	}
	return store.Cas(codec.BranchHeadKey(name), newValue, expected)
}

// Set unconditionally points name at commitID, creating it if absent.
// Used for direct HEAD resets, which do not need to race another writer.
func Set(store kv.Store, name, commitID string) error {
	value, err := codec.ToBytes(commitID)
	if err != nil {
		return err
	}
	return store.Set(codec.BranchHeadKey(name), value)
}

// Delete removes a branch's head record. The underlying commits are not
// touched and may become orphans, reclaimed by a later GC sweep.
func Delete(store kv.Store, name string) error {
	if _, ok := Get(store, name); !ok {
		return ErrNotFound
	}
	return store.Remove(codec.BranchHeadKey(name))
}

// List enumerates every branch name in the store, sorted.
func List(store kv.Store) []string {
	prefix := codec.BranchHeadPrefix()
	var names []string
	for _, key := range store.Keys() {
		if strings.HasPrefix(key, prefix) {
			name := strings.TrimPrefix(key, prefix)
			if name != "" {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
