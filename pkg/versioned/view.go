// Package versioned implements C4, the versioned core: a commit log over
// a pluggable byte kv.Store, with fast-forward and three-way-merge commit
// paths, branch navigation, and history/diff queries. A View is the unit
// of single-threaded concurrency — callers coordinate across views only
// through Cas on branch head keys.
package versioned

import (
	"time"

	"github.com/ashenfad/kvgit/pkg/branch"
	"github.com/ashenfad/kvgit/pkg/codec"
	"github.com/ashenfad/kvgit/pkg/graph"
	"github.com/ashenfad/kvgit/pkg/kv"
	"github.com/ashenfad/kvgit/pkg/merge"
)

// MergeResult reports the outcome of a Commit call. Strategy is one of
// "no_op", "fast_forward", or "three_way".
type MergeResult struct {
	Merged         bool
	Commit         string
	Strategy       string
	AutoMergedKeys []string
	CarriedKeys    []string
}

// View is an in-memory handle on a single branch at a known commit.
type View struct {
	store kv.Store
	br    string

	currentCommit string
	baseCommit    string

	commitKeys map[string]string
	meta       map[string]codec.MetaEntry
	touchCtr   int64

	registry        *merge.Registry
	lastMergeResult *MergeResult
}

// Open returns a View on branch, at commitID if non-empty, or at the
// branch's current head. If the branch has no head yet, an empty initial
// commit is created and the branch points at it.
func Open(store kv.Store, br string, commitID string) (*View, error) {
	if br == "" {
		br = "main"
	}
	if commitID == "" {
		if head, ok := branch.Get(store, br); ok {
			commitID = head
		} else {
			initialHash, err := codec.ContentHash(nil, map[string]string{}, map[string][]byte{}, nil)
			if err != nil {
				return nil, err
			}
			commitID = initialHash

			keysetBytes, err := codec.ToBytes(map[string]string{})
			if err != nil {
				return nil, err
			}
			parentsBytes, err := codec.ToBytes([]string{})
			if err != nil {
				return nil, err
			}
			metaBytes, err := codec.MetaToBytes(map[string]codec.MetaEntry{})
			if err != nil {
				return nil, err
			}
			totalSizeBytes, err := codec.ToBytes(0)
			if err != nil {
				return nil, err
			}
			branchHeadBytes, err := codec.ToBytes(commitID)
			if err != nil {
				return nil, err
			}

			if err := store.SetMany(map[string][]byte{
				codec.CommitKeysetKey(commitID): keysetBytes,
				codec.ParentCommitKey(commitID): parentsBytes,
				codec.MetaKey(commitID):         metaBytes,
				codec.TotalVarSizeKey(commitID): totalSizeBytes,
				codec.BranchHeadKey(br):         branchHeadBytes,
			}); err != nil {
				return nil, err
			}
		}
	}

	v := &View{
		store:    store,
		br:       br,
		registry: merge.NewRegistry(),
	}
	v.loadCommit(commitID, true)
	return v, nil
}

func (v *View) loadCommit(commitID string, updateBase bool) {
	v.currentCommit = commitID
	if updateBase {
		v.baseCommit = commitID
	}
	v.commitKeys = graph.Keyset(v.store, commitID)

	v.meta = map[string]codec.MetaEntry{}
	if raw, ok := v.store.Get(codec.MetaKey(commitID)); ok {
		if meta, err := codec.MetaFromBytes(raw); err == nil {
			v.meta = meta
		}
	}
	var maxTouch int64
	for _, e := range v.meta {
		if e.LastTouch > maxTouch {
			maxTouch = e.LastTouch
		}
	}
	v.touchCtr = maxTouch
}

// CurrentCommit is the commit id this view currently presents reads from.
func (v *View) CurrentCommit() string { return v.currentCommit }

// BaseCommit is the commit this view last successfully advanced the
// branch head to or loaded from; Commit's fast-forward path compares
// against this to detect a concurrent advance.
func (v *View) BaseCommit() string { return v.baseCommit }

// CurrentBranch is the branch name this view is attached to.
func (v *View) CurrentBranch() string { return v.br }

// LastMergeResult is the result of the most recent Commit call, or nil if
// Commit has never been called on this view.
func (v *View) LastMergeResult() *MergeResult { return v.lastMergeResult }

// LatestHead reads the branch head directly from the store, reflecting
// writes from any other view.
func (v *View) LatestHead() (string, bool) { return branch.Get(v.store, v.br) }

// InitialCommit is the root commit reached by following first-parent
// history from the current commit.
func (v *View) InitialCommit() string {
	chain := graph.History(v.store, v.currentCommit, false)
	if len(chain) == 0 {
		return v.currentCommit
	}
	return chain[len(chain)-1]
}

// Get reads a key from the current commit, recording a touch for GC.
func (v *View) Get(key string) ([]byte, bool) {
	vk, ok := v.commitKeys[key]
	if !ok {
		return nil, false
	}
	value, ok := v.store.Get(vk)
	if ok {
		v.touch(key)
	}
	return value, ok
}

// GetMany reads several keys from the current commit in one call,
// touching each key found.
func (v *View) GetMany(keys []string) map[string][]byte {
	vkToKey := make(map[string]string, len(keys))
	for _, key := range keys {
		if vk, ok := v.commitKeys[key]; ok {
			vkToKey[vk] = key
		}
	}
	if len(vkToKey) == 0 {
		return map[string][]byte{}
	}
	vks := make([]string, 0, len(vkToKey))
	for vk := range vkToKey {
		vks = append(vks, vk)
	}
	raw := v.store.GetMany(vks)

	result := make(map[string][]byte, len(raw))
	for vk, value := range raw {
		key := vkToKey[vk]
		result[key] = value
		v.touch(key)
	}
	return result
}

// Keys lists every user key visible in the current commit.
func (v *View) Keys() []string {
	keys := make([]string, 0, len(v.commitKeys))
	for k := range v.commitKeys {
		keys = append(keys, k)
	}
	return keys
}

// Contains reports whether key is present in the current commit.
func (v *View) Contains(key string) bool {
	_, ok := v.commitKeys[key]
	return ok
}

func (v *View) touch(key string) {
	entry, ok := v.meta[key]
	if !ok {
		return
	}
	v.touchCtr++
	entry.LastTouch = v.touchCtr
	v.meta[key] = entry
}

// SetMergeFn registers a merge function for a specific key, used by
// future Commit calls unless overridden per-call.
func (v *View) SetMergeFn(key string, fn merge.Fn) { v.registry.SetKeyFn(key, fn) }

// SetDefaultMerge registers the fallback merge function for contested
// keys with no specific registration.
func (v *View) SetDefaultMerge(fn merge.Fn) { v.registry.SetDefaultFn(fn) }

type savedState struct {
	currentCommit string
	commitKeys    map[string]string
	meta          map[string]codec.MetaEntry
	touchCtr      int64
}

func (v *View) snapshot() savedState {
	keysCopy := make(map[string]string, len(v.commitKeys))
	for k, val := range v.commitKeys {
		keysCopy[k] = val
	}
	metaCopy := make(map[string]codec.MetaEntry, len(v.meta))
	for k, val := range v.meta {
		metaCopy[k] = val
	}
	return savedState{
		currentCommit: v.currentCommit,
		commitKeys:    keysCopy,
		meta:          metaCopy,
		touchCtr:      v.touchCtr,
	}
}

func (v *View) restore(s savedState) {
	v.currentCommit = s.currentCommit
	v.commitKeys = s.commitKeys
	v.meta = s.meta
	v.touchCtr = s.touchCtr
}

// createCommit builds a new local commit from the current state plus
// updates/removals, without advancing any branch head. Returns the new
// commit id.
func (v *View) createCommit(updates map[string][]byte, removals map[string]bool, info map[string]any) (string, error) {
	newKeys := make(map[string]string, len(v.commitKeys))
	newMeta := make(map[string]codec.MetaEntry, len(v.meta))
	for key, vk := range v.commitKeys {
		if removals[key] {
			continue
		}
		newKeys[key] = vk
		if e, ok := v.meta[key]; ok {
			newMeta[key] = e
		}
	}

	previewKeys := make(map[string]string, len(newKeys)+len(updates))
	for k, val := range newKeys {
		previewKeys[k] = val
	}
	for key := range updates {
		previewKeys[key] = codec.PendingBlobKey(key)
	}

	newHash, err := codec.ContentHash([]string{v.currentCommit}, previewKeys, updates, info)
	if err != nil {
		return "", err
	}

	diffs := make(map[string][]byte, len(updates)+5)
	for key, value := range updates {
		vk := codec.BlobKey(newHash, key)
		diffs[vk] = value
		newKeys[key] = vk
		if e, ok := newMeta[key]; ok {
			v.touchCtr++
			e.LastTouch = v.touchCtr
			e.Size = len(value)
			newMeta[key] = e
		} else {
			v.touchCtr++
			newMeta[key] = codec.MetaEntry{
				LastTouch: v.touchCtr,
				Size:      len(value),
				CreatedAt: nowSeconds(),
			}
		}
	}

	keysetBytes, err := codec.ToBytes(newKeys)
	if err != nil {
		return "", err
	}
	parentsBytes, err := codec.ToBytes([]string{v.currentCommit})
	if err != nil {
		return "", err
	}
	metaBytes, err := codec.MetaToBytes(newMeta)
	if err != nil {
		return "", err
	}
	totalSize := 0
	for _, e := range newMeta {
		totalSize += e.Size
	}
	totalSizeBytes, err := codec.ToBytes(totalSize)
	if err != nil {
		return "", err
	}

	diffs[codec.CommitKeysetKey(newHash)] = keysetBytes
	diffs[codec.ParentCommitKey(newHash)] = parentsBytes
	diffs[codec.MetaKey(newHash)] = metaBytes
	diffs[codec.TotalVarSizeKey(newHash)] = totalSizeBytes
	if info != nil {
		infoBytes, err := codec.ToBytes(info)
		if err != nil {
			return "", err
		}
		diffs[codec.InfoKey(newHash)] = infoBytes
	}

	if err := v.store.SetMany(diffs); err != nil {
		return "", err
	}

	v.commitKeys = newKeys
	v.currentCommit = newHash
	v.meta = newMeta
	return newHash, nil
}

// nowSeconds is the time source for created_at metadata; it is the only
// place the commit path reads wall-clock time.
func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
