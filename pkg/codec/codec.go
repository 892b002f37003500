// Package codec implements the canonical serialization and content-hash
// computation for commits, plus the reserved backend-key namespace the
// rest of kvgit builds on.
package codec

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved key formats. A commit's keyset, parent list, per-key metadata,
// total variable size, and optional info blob each live under one of
// these, keyed by commit hash; branch heads live under BranchHeadKey.
const (
	commitKeysetFmt   = "__commit_keyset__%s"
	parentCommitFmt   = "__parent_commit__%s"
	branchHeadFmt     = "__branch_head__%s"
	metaFmt           = "__meta__%s"
	totalVarSizeFmt   = "__total_var_size__%s"
	infoFmt           = "__info__%s"
	branchHeadPrefix  = "__branch_head__"
	metaPrefix        = "__meta__"
)

// CommitKeysetKey is the backend key holding a commit's user-key ->
// blob-pointer keyset.
func CommitKeysetKey(commitID string) string { return fmt.Sprintf(commitKeysetFmt, commitID) }

// ParentCommitKey is the backend key holding a commit's parent list.
func ParentCommitKey(commitID string) string { return fmt.Sprintf(parentCommitFmt, commitID) }

// BranchHeadKey is the backend key holding a branch's current commit ID.
func BranchHeadKey(branch string) string { return fmt.Sprintf(branchHeadFmt, branch) }

// BranchHeadPrefix is the prefix shared by every branch head key, used to
// enumerate branches by scanning Store.Keys().
func BranchHeadPrefix() string { return branchHeadPrefix }

// MetaKey is the backend key holding a commit's per-key metadata map.
func MetaKey(commitID string) string { return fmt.Sprintf(metaFmt, commitID) }

// MetaPrefix is the prefix shared by every meta key, used by orphan sweeps.
func MetaPrefix() string { return metaPrefix }

// TotalVarSizeKey is the backend key holding a commit's total retained
// user-value size in bytes.
func TotalVarSizeKey(commitID string) string { return fmt.Sprintf(totalVarSizeFmt, commitID) }

// InfoKey is the backend key holding a commit's optional caller-supplied
// info blob, if one was recorded.
func InfoKey(commitID string) string { return fmt.Sprintf(infoFmt, commitID) }

// BlobKey is the versioned pointer a user key resolves to within a given
// commit: "<commitID>:<userKey>".
func BlobKey(commitID, userKey string) string { return commitID + ":" + userKey }

// PendingBlobKey is the placeholder used in the keyset preview that feeds
// the content hash, before the real commit ID is known.
func PendingBlobKey(userKey string) string { return "<pending:" + userKey + ">" }

// ToBytes encodes a JSON-safe value using the same compact, key-sorted
// encoding the original implementation relies on for deterministic
// content hashing: no whitespace, map keys in sorted order.
func ToBytes(v any) ([]byte, error) {
	return json.Marshal(v)
}

// FromBytes decodes JSON bytes into v.
func FromBytes(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

// MetaEntry is per-key bookkeeping used by GC: when a key was last read or
// written (a monotonically increasing logical clock, not a wall-clock
// timestamp), its current blob size, and when it was created.
type MetaEntry struct {
	LastTouch int64   `json:"last_touch"`
	Size      int     `json:"size"`
	CreatedAt float64 `json:"created_at"`
}

// MetaToBytes serializes a per-key metadata map.
func MetaToBytes(meta map[string]MetaEntry) ([]byte, error) {
	return ToBytes(meta)
}

// MetaFromBytes deserializes a per-key metadata map.
func MetaFromBytes(raw []byte) (map[string]MetaEntry, error) {
	var meta map[string]MetaEntry
	if err := FromBytes(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// sortedKeysetPairs renders a keyset as the same [[key, value], ...]
// shape `sorted(keyset.items())` produces in the original, so the hash
// input is independent of Go's map iteration order.
func sortedKeysetPairs(keyset map[string]string) [][2]string {
	keys := make([]string, 0, len(keyset))
	for k := range keyset {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([][2]string, len(keys))
	for i, k := range keys {
		pairs[i] = [2]string{k, keyset[k]}
	}
	return pairs
}

// ContentHash computes the content-addressable commit ID: a 40-hex-char
// SHA-256 prefix over the parent list, the preview keyset (with pending
// placeholders for keys about to be written), the sorted update blobs, and
// an optional info blob. Two commits with identical parents, keyset, and
// updates always hash the same, and a single differing byte anywhere in
// the inputs changes the hash.
func ContentHash(parents []string, keyset map[string]string, updates map[string][]byte, info map[string]any) (string, error) {
	h := sha256.New()

	parentList := parents
	if parentList == nil {
		parentList = []string{}
	}
	parentBytes, err := ToBytes(parentList)
	if err != nil {
		return "", err
	}
	h.Write(parentBytes)

	pairBytes, err := ToBytes(sortedKeysetPairs(keyset))
	if err != nil {
		return "", err
	}
	h.Write(pairBytes)

	updateKeys := make([]string, 0, len(updates))
	for k := range updates {
		updateKeys = append(updateKeys, k)
	}
	sort.Strings(updateKeys)
	for _, k := range updateKeys {
		h.Write([]byte(k))
		h.Write(updates[k])
	}

	if info != nil {
		infoBytes, err := ToBytes(info)
		if err != nil {
			return "", err
		}
		h.Write(infoBytes)
	}

	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum)[:40], nil
}
