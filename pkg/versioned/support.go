package versioned

import (
	"github.com/ashenfad/kvgit/pkg/codec"
	"github.com/ashenfad/kvgit/pkg/kv"
)

// Store exposes the backing kv.Store, for packages (like gc) that compose
// a View and need to read/write reserved keys directly.
func (v *View) Store() kv.Store { return v.store }

// RawMeta returns a copy of the current commit's per-key metadata map.
func (v *View) RawMeta() map[string]codec.MetaEntry {
	out := make(map[string]codec.MetaEntry, len(v.meta))
	for k, e := range v.meta {
		out[k] = e
	}
	return out
}

// RawKeyset returns a copy of the current commit's user-key -> blob-key
// map.
func (v *View) RawKeyset() map[string]string {
	out := make(map[string]string, len(v.commitKeys))
	for k, vk := range v.commitKeys {
		out[k] = vk
	}
	return out
}

// LoadTotalSize reads the persisted total-variable-size counter for the
// current commit, or 0 if absent.
func (v *View) LoadTotalSize() int {
	raw, ok := v.store.Get(codec.TotalVarSizeKey(v.currentCommit))
	if !ok {
		return 0
	}
	var total int
	if err := codec.FromBytes(raw, &total); err != nil {
		return 0
	}
	return total
}

// AdoptExternalState replaces this view's in-memory state after a caller
// outside the normal Commit path (gc's rebase) has written a new commit
// and CAS'd the branch head to it directly.
func (v *View) AdoptExternalState(newCommit string, newKeyset map[string]string, newMeta map[string]codec.MetaEntry) {
	v.commitKeys = newKeyset
	v.currentCommit = newCommit
	v.baseCommit = newCommit
	v.meta = newMeta
}
