package versioned

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOnConflictInvalid is returned when CommitOptions.OnConflict is
// neither "raise" nor "abandon".
var ErrOnConflictInvalid = errors.New("versioned: on_conflict must be \"raise\" or \"abandon\"")

// ErrNoHead is returned by Commit's three-way path when the branch has no
// recorded head at all — a state that should only arise if a branch's
// head record was removed out from under a live view.
var ErrNoHead = errors.New("versioned: branch has no HEAD")

// ErrUnknownCommit is returned when an operation references a commit id
// with no recorded keyset.
var ErrUnknownCommit = errors.New("versioned: commit does not exist")

// ErrCannotDeleteCurrentBranch is returned by DeleteBranch for the
// view's own branch.
var ErrCannotDeleteCurrentBranch = errors.New("versioned: cannot delete the current branch")

// ConcurrencyError reports that a CAS advance of the branch head lost a
// race to another writer. The caller should Refresh and retry.
type ConcurrencyError struct {
	Message string
}

func (e *ConcurrencyError) Error() string { return e.Message }

// MergeConflict reports that a three-way merge found contested keys with
// no resolving merge function. ConflictingKeys is sorted for a
// deterministic message and easy testing.
type MergeConflict struct {
	ConflictingKeys []string
	MergeErrors     map[string]error
}

func (e *MergeConflict) Error() string {
	keys := append([]string(nil), e.ConflictingKeys...)
	sort.Strings(keys)
	return fmt.Sprintf("versioned: merge conflict on keys: %s", strings.Join(keys, ", "))
}
