package versioned

import (
	"bytes"
	"sort"

	"github.com/ashenfad/kvgit/pkg/branch"
	"github.com/ashenfad/kvgit/pkg/codec"
	"github.com/ashenfad/kvgit/pkg/graph"
	"github.com/ashenfad/kvgit/pkg/merge"
)

// CommitOptions configures a single Commit call. OnConflict is "raise"
// (default, zero value) or "abandon". MergeFns and DefaultMerge override
// the view's registered merge functions for this call only.
type CommitOptions struct {
	OnConflict   string
	MergeFns     map[string]merge.Fn
	DefaultMerge merge.Fn
	Info         map[string]any
}

func (o CommitOptions) onConflict() string {
	if o.OnConflict == "" {
		return "raise"
	}
	return o.OnConflict
}

// Commit writes updates/removals as a new commit and advances the branch
// head. If the branch head has diverged from this view's base commit, it
// performs a three-way merge against the current head instead of a plain
// fast-forward.
func (v *View) Commit(updates map[string][]byte, removals map[string]bool, opts CommitOptions) (*MergeResult, error) {
	if len(updates) == 0 && len(removals) == 0 && opts.Info == nil {
		result := &MergeResult{Merged: true, Commit: v.currentCommit, Strategy: "no_op"}
		v.lastMergeResult = result
		return result, nil
	}

	onConflict := opts.onConflict()
	if onConflict != "raise" && onConflict != "abandon" {
		return nil, ErrOnConflictInvalid
	}

	currentHead, _ := branch.Get(v.store, v.br)

	if currentHead == v.baseCommit {
		return v.fastForward(updates, removals, onConflict, opts.Info)
	}

	if currentHead == "" {
		return nil, ErrNoHead
	}
	saved := v.snapshot()
	if _, err := v.createCommit(updates, removals, nil); err != nil {
		return nil, err
	}
	return v.threeWayMerge(currentHead, onConflict, opts.MergeFns, opts.DefaultMerge, opts.Info, &saved)
}

func (v *View) fastForward(updates map[string][]byte, removals map[string]bool, onConflict string, info map[string]any) (*MergeResult, error) {
	saved := v.snapshot()
	if _, err := v.createCommit(updates, removals, info); err != nil {
		return nil, err
	}

	ok, err := branch.Cas(v.store, v.br, v.currentCommit, v.baseCommit)
	if err != nil {
		return nil, err
	}
	if ok {
		v.baseCommit = v.currentCommit
		carried := make([]string, 0, len(v.commitKeys))
		for k := range v.commitKeys {
			carried = append(carried, k)
		}
		result := &MergeResult{
			Merged:      true,
			Commit:      v.currentCommit,
			Strategy:    "fast_forward",
			CarriedKeys: carried,
		}
		v.lastMergeResult = result
		return result, nil
	}

	v.restore(saved)
	if onConflict == "abandon" {
		result := &MergeResult{Merged: false, Strategy: "fast_forward"}
		v.lastMergeResult = result
		return result, nil
	}
	return nil, &ConcurrencyError{Message: "versioned: HEAD changed from " + v.baseCommit + ". Refresh and retry."}
}

func (v *View) threeWayMerge(theirHead, onConflict string, perCallFns map[string]merge.Fn, perCallDefault merge.Fn, info map[string]any, saved *savedState) (*MergeResult, error) {
	lca := graph.LCA(v.store, v.currentCommit, theirHead)
	if lca == "" {
		if saved != nil {
			v.restore(*saved)
		}
		if onConflict == "abandon" {
			result := &MergeResult{Merged: false, Strategy: "three_way"}
			v.lastMergeResult = result
			return result, nil
		}
		return nil, &ConcurrencyError{Message: "versioned: no common ancestor found between current commit and HEAD."}
	}

	ourDiff := graph.DiffCommits(v.store, lca, v.currentCommit)
	theirDiff := graph.DiffCommits(v.store, lca, theirHead)

	lcaKeyset := graph.Keyset(v.store, lca)
	ourKeyset := graph.Keyset(v.store, v.currentCommit)
	theirKeyset := graph.Keyset(v.store, theirHead)

	ourChanged := unionKeys(ourDiff.Added, ourDiff.Removed, ourDiff.Modified)
	theirChanged := unionKeys(theirDiff.Added, theirDiff.Removed, theirDiff.Modified)
	allChanged := unionKeys(ourChanged, theirChanged)

	mergedKeyset := map[string]string{}
	mergedValues := map[string][]byte{}
	var autoMerged []string
	conflicts := map[string]bool{}
	mergeErrors := map[string]error{}

	allKeys := unionKeys(keysOf(ourKeyset), keysOf(theirKeyset))
	for key := range allKeys {
		if allChanged[key] {
			continue
		}
		if vk, ok := theirKeyset[key]; ok {
			mergedKeyset[key] = vk
		} else if vk, ok := ourKeyset[key]; ok {
			mergedKeyset[key] = vk
		}
	}

	for key := range ourChanged {
		if theirChanged[key] {
			continue
		}
		if ourDiff.Removed[key] {
			continue
		}
		mergedKeyset[key] = ourKeyset[key]
		autoMerged = append(autoMerged, key)
	}

	for key := range theirChanged {
		if ourChanged[key] {
			continue
		}
		if theirDiff.Removed[key] {
			continue
		}
		mergedKeyset[key] = theirKeyset[key]
		autoMerged = append(autoMerged, key)
	}

	for key := range ourChanged {
		if !theirChanged[key] {
			continue
		}
		ourRemoved := ourDiff.Removed[key]
		theirRemoved := theirDiff.Removed[key]

		if ourRemoved && theirRemoved {
			continue
		}

		if !ourRemoved && !theirRemoved {
			if ourKeyset[key] == theirKeyset[key] {
				mergedKeyset[key] = theirKeyset[key]
				continue
			}
			ourBytes, okOurs := v.store.Get(ourKeyset[key])
			theirBytes, okTheirs := v.store.Get(theirKeyset[key])
			if okOurs && okTheirs && bytes.Equal(ourBytes, theirBytes) {
				mergedKeyset[key] = theirKeyset[key]
				continue
			}
		}

		fn := v.registry.Resolve(key, perCallFns, perCallDefault)
		if fn == nil {
			conflicts[key] = true
			continue
		}

		var oldVal, ourVal, theirVal []byte
		if vk, ok := lcaKeyset[key]; ok {
			oldVal, _ = v.store.Get(vk)
		}
		if !ourRemoved {
			ourVal, _ = v.store.Get(ourKeyset[key])
		}
		if !theirRemoved {
			theirVal, _ = v.store.Get(theirKeyset[key])
		}

		mergedVal, err := fn(oldVal, ourVal, theirVal)
		if err != nil {
			conflicts[key] = true
			mergeErrors[key] = err
			continue
		}
		mergedValues[key] = mergedVal
		autoMerged = append(autoMerged, key)
	}

	if len(conflicts) > 0 {
		keys := make([]string, 0, len(conflicts))
		for k := range conflicts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, &MergeConflict{ConflictingKeys: keys, MergeErrors: mergeErrors}
	}

	parents := []string{theirHead, v.currentCommit}

	previewKeys := make(map[string]string, len(mergedKeyset))
	for k, val := range mergedKeyset {
		previewKeys[k] = val
	}
	for key := range mergedValues {
		previewKeys[key] = codec.PendingBlobKey(key)
	}

	mergeHash, err := codec.ContentHash(parents, previewKeys, mergedValues, info)
	if err != nil {
		return nil, err
	}

	diffs := make(map[string][]byte, len(mergedValues)+5)
	for key, value := range mergedValues {
		vk := codec.BlobKey(mergeHash, key)
		mergedKeyset[key] = vk
		diffs[vk] = value
	}

	ourMeta := loadMeta(v.store, v.currentCommit)
	theirMeta := loadMeta(v.store, theirHead)

	mergedMeta := map[string]codec.MetaEntry{}
	for key := range mergedKeyset {
		if _, ok := mergedValues[key]; ok {
			v.touchCtr++
			mergedMeta[key] = codec.MetaEntry{
				LastTouch: v.touchCtr,
				Size:      len(mergedValues[key]),
				CreatedAt: nowSeconds(),
			}
		} else if e, ok := ourMeta[key]; ok {
			mergedMeta[key] = e
		} else if e, ok := theirMeta[key]; ok {
			mergedMeta[key] = e
		}
	}

	keysetBytes, err := codec.ToBytes(mergedKeyset)
	if err != nil {
		return nil, err
	}
	parentsBytes, err := codec.ToBytes(parents)
	if err != nil {
		return nil, err
	}
	metaBytes, err := codec.MetaToBytes(mergedMeta)
	if err != nil {
		return nil, err
	}
	totalSize := 0
	for _, e := range mergedMeta {
		totalSize += e.Size
	}
	totalSizeBytes, err := codec.ToBytes(totalSize)
	if err != nil {
		return nil, err
	}

	diffs[codec.CommitKeysetKey(mergeHash)] = keysetBytes
	diffs[codec.ParentCommitKey(mergeHash)] = parentsBytes
	diffs[codec.MetaKey(mergeHash)] = metaBytes
	diffs[codec.TotalVarSizeKey(mergeHash)] = totalSizeBytes
	if info != nil {
		infoBytes, err := codec.ToBytes(info)
		if err != nil {
			return nil, err
		}
		diffs[codec.InfoKey(mergeHash)] = infoBytes
	}

	if err := v.store.SetMany(diffs); err != nil {
		return nil, err
	}

	ok, err := branch.Cas(v.store, v.br, mergeHash, theirHead)
	if err != nil {
		return nil, err
	}
	if ok {
		v.commitKeys = mergedKeyset
		v.currentCommit = mergeHash
		v.baseCommit = mergeHash
		v.meta = mergedMeta

		autoSet := map[string]bool{}
		for _, k := range autoMerged {
			autoSet[k] = true
		}
		var carried []string
		for k := range mergedKeyset {
			if autoSet[k] {
				continue
			}
			if _, ok := mergedValues[k]; ok {
				continue
			}
			carried = append(carried, k)
		}

		result := &MergeResult{
			Merged:         true,
			Commit:         mergeHash,
			Strategy:       "three_way",
			AutoMergedKeys: autoMerged,
			CarriedKeys:    carried,
		}
		v.lastMergeResult = result
		return result, nil
	}

	if saved != nil {
		v.restore(*saved)
	}
	if onConflict == "abandon" {
		result := &MergeResult{Merged: false, Strategy: "three_way"}
		v.lastMergeResult = result
		return result, nil
	}
	return nil, &ConcurrencyError{Message: "versioned: HEAD changed during three-way merge. Refresh and retry."}
}

func loadMeta(store interface {
	Get(string) ([]byte, bool)
}, commitID string) map[string]codec.MetaEntry {
	raw, ok := store.Get(codec.MetaKey(commitID))
	if !ok {
		return map[string]codec.MetaEntry{}
	}
	meta, err := codec.MetaFromBytes(raw)
	if err != nil {
		return map[string]codec.MetaEntry{}
	}
	return meta
}

func keysOf(m map[string]string) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func unionKeys(sets ...map[string]bool) map[string]bool {
	out := map[string]bool{}
	for _, s := range sets {
		for k := range s {
			out[k] = true
		}
	}
	return out
}
