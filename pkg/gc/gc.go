// Package gc wraps a versioned.View with automatic rebase-based garbage
// collection: a high/low water mark policy that drops cold user keys into
// a fresh root commit, plus an orphan sweep over unreachable historical
// commits. Go has no subclassing, so where the original GCVersioned
// extends Versioned, GC here composes a *versioned.View and re-exposes
// the read/write surface it needs.
package gc

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ashenfad/kvgit/pkg/branch"
	"github.com/ashenfad/kvgit/pkg/codec"
	"github.com/ashenfad/kvgit/pkg/graph"
	"github.com/ashenfad/kvgit/pkg/versioned"
)

// ErrInvalidHighWater is returned by New when highWater is not positive.
var ErrInvalidHighWater = errors.New("gc: high water must be > 0")

// IsProtected decides whether a key is exempt from eviction. The default
// policy protects any key whose last '/'-split path segment starts with
// "__" — system/reserved-looking keys namespaced or not.
type IsProtected func(key string) bool

// DefaultIsProtected is the policy used when GC is constructed without an
// explicit one.
func DefaultIsProtected(key string) bool {
	base := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		base = key[i+1:]
	}
	return strings.HasPrefix(base, "__")
}

// RebaseResult reports the outcome of a Rebase or MaybeRebase call.
type RebaseResult struct {
	Performed       bool
	NewCommit       string
	DroppedKeys     []string
	KeptKeys        []string
	TotalSizeBefore int
	TotalSizeAfter  int
	OrphansCleaned  int
}

// GC wraps a *versioned.View, auto-running a rebase after every Commit
// that pushes total persisted size above HighWater.
type GC struct {
	*versioned.View

	HighWater int
	LowWater  int

	isProtected      IsProtected
	lastRebaseResult *RebaseResult
}

// New wraps view with GC behavior. lowWater defaults to 80% of highWater
// when given as 0 or an out-of-range value. isProtected defaults to
// DefaultIsProtected when nil.
func New(view *versioned.View, highWater, lowWater int, isProtected IsProtected) (*GC, error) {
	if highWater <= 0 {
		return nil, ErrInvalidHighWater
	}
	if lowWater <= 0 || lowWater > highWater {
		lowWater = int(float64(highWater) * 0.8)
	}
	if isProtected == nil {
		isProtected = DefaultIsProtected
	}
	return &GC{View: view, HighWater: highWater, LowWater: lowWater, isProtected: isProtected}, nil
}

// LastRebaseResult is the result of the most recent rebase that Commit
// performed, or nil if no Commit through this GC has triggered one yet.
func (g *GC) LastRebaseResult() *RebaseResult { return g.lastRebaseResult }

// Commit delegates to the wrapped View's Commit, then runs MaybeRebase
// when the commit succeeded.
func (g *GC) Commit(updates map[string][]byte, removals map[string]bool, opts versioned.CommitOptions) (*versioned.MergeResult, error) {
	result, err := g.View.Commit(updates, removals, opts)
	if err != nil {
		return nil, err
	}
	if result.Merged {
		rebaseResult, err := g.MaybeRebase()
		if err != nil {
			return nil, err
		}
		if rebaseResult.Performed {
			g.lastRebaseResult = rebaseResult
		}
	}
	return result, nil
}

// MaybeRebase runs Rebase only if total persisted size exceeds HighWater.
func (g *GC) MaybeRebase() (*RebaseResult, error) {
	total := g.LoadTotalSize()
	if total <= g.HighWater {
		return &RebaseResult{
			Performed:       false,
			KeptKeys:        keysOfMap(g.RawKeyset()),
			TotalSizeBefore: total,
			TotalSizeAfter:  total,
		}, nil
	}
	return g.Rebase(nil, nil)
}

// Rebase creates a fresh root commit retaining only surviving keys.
// If keepKeys is non-nil, exactly those keys (plus protected keys) are
// retained; otherwise the high/low water strategy drops the coldest user
// keys (oldest touch, then largest size) until under LowWater.
func (g *GC) Rebase(keepKeys map[string]bool, info map[string]any) (*RebaseResult, error) {
	store := g.Store()
	meta := g.RawMeta()
	keyset := g.RawKeyset()

	totalBefore := g.LoadTotalSize()
	if totalBefore == 0 {
		for _, e := range meta {
			totalBefore += e.Size
		}
	}

	protectedKeys := map[string]string{}
	userMeta := map[string]codec.MetaEntry{}
	for key, vk := range keyset {
		if g.isProtected(key) {
			protectedKeys[key] = vk
		} else if e, ok := meta[key]; ok {
			userMeta[key] = e
		}
	}

	retained := map[string]bool{}
	for k := range protectedKeys {
		retained[k] = true
	}
	for k := range userMeta {
		retained[k] = true
	}

	total := 0
	for _, e := range userMeta {
		total += e.Size
	}

	var dropped []string
	if keepKeys != nil {
		for key := range retained {
			if g.isProtected(key) {
				continue
			}
			if !keepKeys[key] {
				delete(retained, key)
				dropped = append(dropped, key)
				total -= userMeta[key].Size
			}
		}
	} else {
		type candidate struct {
			key   string
			entry codec.MetaEntry
		}
		candidates := make([]candidate, 0, len(userMeta))
		for k, e := range userMeta {
			candidates = append(candidates, candidate{k, e})
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].entry.LastTouch != candidates[j].entry.LastTouch {
				return candidates[i].entry.LastTouch < candidates[j].entry.LastTouch
			}
			return candidates[i].entry.Size > candidates[j].entry.Size
		})
		for _, c := range candidates {
			if total <= g.LowWater {
				break
			}
			delete(retained, c.key)
			dropped = append(dropped, c.key)
			total -= c.entry.Size
		}
	}

	newKeyset := map[string]string{}
	newMeta := map[string]codec.MetaEntry{}
	retainedData := map[string][]byte{}

	for key := range retained {
		vk, ok := keyset[key]
		if !ok {
			continue
		}
		value, ok := store.Get(vk)
		if !ok {
			continue
		}
		if !g.isProtected(key) {
			retainedData[key] = value
			if e, ok := meta[key]; ok {
				newMeta[key] = e
			}
		}
	}

	previewKeys := map[string]string{}
	for key := range protectedKeys {
		previewKeys[key] = protectedKeys[key]
	}
	for key := range retainedData {
		previewKeys[key] = codec.PendingBlobKey(key)
	}
	newHash, err := codec.ContentHash(nil, previewKeys, retainedData, info)
	if err != nil {
		return nil, err
	}

	diffs := map[string][]byte{}
	for key, oldVK := range protectedKeys {
		value, ok := store.Get(oldVK)
		if !ok {
			continue
		}
		newVK := codec.BlobKey(newHash, key)
		newKeyset[key] = newVK
		diffs[newVK] = value
	}
	for key, value := range retainedData {
		newVK := codec.BlobKey(newHash, key)
		newKeyset[key] = newVK
		diffs[newVK] = value
	}

	keysetBytes, err := codec.ToBytes(newKeyset)
	if err != nil {
		return nil, err
	}
	parentsBytes, err := codec.ToBytes([]string{})
	if err != nil {
		return nil, err
	}
	metaBytes, err := codec.MetaToBytes(newMeta)
	if err != nil {
		return nil, err
	}
	totalAfter := 0
	for _, e := range newMeta {
		totalAfter += e.Size
	}
	totalBytes, err := codec.ToBytes(totalAfter)
	if err != nil {
		return nil, err
	}

	diffs[codec.CommitKeysetKey(newHash)] = keysetBytes
	diffs[codec.ParentCommitKey(newHash)] = parentsBytes
	diffs[codec.MetaKey(newHash)] = metaBytes
	diffs[codec.TotalVarSizeKey(newHash)] = totalBytes
	if info != nil {
		infoBytes, err := codec.ToBytes(info)
		if err != nil {
			return nil, err
		}
		diffs[codec.InfoKey(newHash)] = infoBytes
	}

	if err := store.SetMany(diffs); err != nil {
		return nil, err
	}

	ok, err := branch.Cas(store, g.CurrentBranch(), newHash, g.BaseCommit())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &versioned.ConcurrencyError{Message: "gc: HEAD changed during rebase."}
	}

	var toDelete []string
	for _, key := range dropped {
		if vk, ok := keyset[key]; ok {
			toDelete = append(toDelete, vk)
		}
	}
	if len(toDelete) > 0 {
		if err := store.RemoveMany(toDelete); err != nil {
			return nil, err
		}
	}

	g.adoptRebaseState(newHash, newKeyset, newMeta)

	orphansCleaned, err := g.CleanOrphans(3600)
	if err != nil {
		return nil, err
	}

	return &RebaseResult{
		Performed:       true,
		NewCommit:       newHash,
		DroppedKeys:     dropped,
		KeptKeys:        keysOfSet(retained),
		TotalSizeBefore: totalBefore,
		TotalSizeAfter:  totalAfter,
		OrphansCleaned:  orphansCleaned,
	}, nil
}

// adoptRebaseState pushes the rebase commit's new state into the wrapped
// View without going through versioned's normal commit path.
func (g *GC) adoptRebaseState(newCommit string, keyset map[string]string, meta map[string]codec.MetaEntry) {
	g.View.AdoptExternalState(newCommit, keyset, meta)
}

// CleanOrphans removes commits unreachable from any branch head that are
// older than minAge seconds, judged by the created_at of an arbitrary
// meta entry recorded on that commit.
func (g *GC) CleanOrphans(minAge float64) (int, error) {
	store := g.Store()

	reachable := map[string]bool{}
	for _, name := range branch.List(store) {
		head, ok := branch.Get(store, name)
		if !ok {
			continue
		}
		for _, commit := range graph.History(store, head, true) {
			reachable[commit] = true
		}
	}

	metaPrefix := codec.MetaPrefix()
	cutoff := nowSeconds() - minAge
	var orphans []string

	for _, key := range store.Keys() {
		if !strings.HasPrefix(key, metaPrefix) {
			continue
		}
		commitHash := strings.TrimPrefix(key, metaPrefix)
		if commitHash == "" || reachable[commitHash] {
			continue
		}
		raw, ok := store.Get(key)
		if !ok {
			continue
		}
		meta, err := codec.MetaFromBytes(raw)
		if err != nil || len(meta) == 0 {
			continue
		}
		var first codec.MetaEntry
		for _, e := range meta {
			first = e
			break
		}
		if first.CreatedAt < cutoff {
			orphans = append(orphans, commitHash)
		}
	}

	for _, orphanHash := range orphans {
		if raw, ok := store.Get(codec.CommitKeysetKey(orphanHash)); ok {
			var keyset map[string]string
			if err := codec.FromBytes(raw, &keyset); err == nil {
				blobKeys := make([]string, 0, len(keyset))
				for _, vk := range keyset {
					blobKeys = append(blobKeys, vk)
				}
				if len(blobKeys) > 0 {
					store.RemoveMany(blobKeys)
				}
			}
		}
		store.RemoveMany([]string{
			codec.MetaKey(orphanHash),
			codec.CommitKeysetKey(orphanHash),
			codec.ParentCommitKey(orphanHash),
			codec.TotalVarSizeKey(orphanHash),
			codec.InfoKey(orphanHash),
		})
	}

	return len(orphans), nil
}

func keysOfMap(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keysOfSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// nowSeconds is the time source for orphan-age comparisons, isolated to
// one call site.
func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
