// Package graph implements read-only traversal of the commit DAG: parent
// lookup, linear and full-DAG history, diffing two commits' keysets, and
// lowest-common-ancestor search for three-way merges.
package graph

import (
	"github.com/ashenfad/kvgit/pkg/codec"
	"github.com/ashenfad/kvgit/pkg/kv"
)

// Diff is the set of user keys added, removed, or modified going from one
// commit to another.
type Diff struct {
	Added    map[string]bool
	Removed  map[string]bool
	Modified map[string]bool
}

// Parents returns the direct parent commit IDs of commitID: none for a
// root commit, one for a normal commit, two for a merge commit.
func Parents(store kv.Store, commitID string) []string {
	raw, ok := store.Get(codec.ParentCommitKey(commitID))
	if !ok {
		return nil
	}
	var parents []string
	if err := codec.FromBytes(raw, &parents); err != nil {
		return nil
	}
	return parents
}

// Keyset loads a commit's user-key -> blob-pointer map. A commit with no
// recorded keyset (never written, or since GC'd) yields an empty map.
func Keyset(store kv.Store, commitID string) map[string]string {
	raw, ok := store.Get(codec.CommitKeysetKey(commitID))
	if !ok {
		return map[string]string{}
	}
	var keyset map[string]string
	if err := codec.FromBytes(raw, &keyset); err != nil {
		return map[string]string{}
	}
	return keyset
}

// History yields the commit chain starting at start. With allParents
// false it follows only the first parent (a linear log, the same chain
// `git log --first-parent` would show). With allParents true it performs
// a breadth-first walk over every parent, visiting each commit once, for
// full-DAG history.
func History(store kv.Store, start string, allParents bool) []string {
	if !allParents {
		var chain []string
		current := start
		for current != "" {
			chain = append(chain, current)
			parents := Parents(store, current)
			if len(parents) == 0 {
				break
			}
			current = parents[0]
		}
		return chain
	}

	visited := map[string]bool{}
	queue := []string{start}
	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		order = append(order, current)
		for _, p := range Parents(store, current) {
			if !visited[p] {
				queue = append(queue, p)
			}
		}
	}
	return order
}

// DiffCommits computes key-level differences between two commits' keysets.
func DiffCommits(store kv.Store, commitA, commitB string) Diff {
	keysetA := Keyset(store, commitA)
	keysetB := Keyset(store, commitB)

	d := Diff{Added: map[string]bool{}, Removed: map[string]bool{}, Modified: map[string]bool{}}
	for k := range keysetB {
		if _, ok := keysetA[k]; !ok {
			d.Added[k] = true
		}
	}
	for k := range keysetA {
		if _, ok := keysetB[k]; !ok {
			d.Removed[k] = true
		}
	}
	for k, va := range keysetA {
		if vb, ok := keysetB[k]; ok && va != vb {
			d.Modified[k] = true
		}
	}
	return d
}

// LCA finds the lowest common ancestor of two commits via interleaved
// breadth-first search from both, returning the first commit reachable
// from both sides, or "" if the commits share no ancestor (e.g. two
// independently rebased roots).
func LCA(store kv.Store, commitA, commitB string) string {
	if commitA == commitB {
		return commitA
	}

	seenA := map[string]bool{commitA: true}
	seenB := map[string]bool{commitB: true}
	queueA := []string{commitA}
	queueB := []string{commitB}

	for len(queueA) > 0 || len(queueB) > 0 {
		if len(queueA) > 0 {
			current := queueA[0]
			queueA = queueA[1:]
			if seenB[current] {
				return current
			}
			for _, p := range Parents(store, current) {
				if !seenA[p] {
					seenA[p] = true
					queueA = append(queueA, p)
					if seenB[p] {
						return p
					}
				}
			}
		}
		if len(queueB) > 0 {
			current := queueB[0]
			queueB = queueB[1:]
			if seenA[current] {
				return current
			}
			for _, p := range Parents(store, current) {
				if !seenB[p] {
					seenB[p] = true
					queueB = append(queueB, p)
					if seenA[p] {
						return p
					}
				}
			}
		}
	}
	return ""
}
