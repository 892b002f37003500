package versioned

import (
	"testing"

	"github.com/ashenfad/kvgit/pkg/kv"
)

func TestOpen_CreatesInitialCommit(t *testing.T) {
	store := kv.NewMemory()
	v, err := Open(store, "main", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v.CurrentCommit() == "" {
		t.Fatal("CurrentCommit is empty after Open")
	}
	if len(v.Keys()) != 0 {
		t.Fatalf("Keys() = %v, want empty", v.Keys())
	}
}

func TestOpen_ReopensExistingHead(t *testing.T) {
	store := kv.NewMemory()
	v1, _ := Open(store, "main", "")
	v1.Commit(map[string][]byte{"a": []byte("1")}, nil, CommitOptions{})

	v2, err := Open(store, "main", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, ok := v2.Get("a")
	if !ok || string(got) != "1" {
		t.Fatalf("Get(a) on reopened view = %q, %v; want 1, true", got, ok)
	}
}

func TestCommit_FastForward(t *testing.T) {
	store := kv.NewMemory()
	v, _ := Open(store, "main", "")

	result, err := v.Commit(map[string][]byte{"a": []byte("1")}, nil, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !result.Merged || result.Strategy != "fast_forward" {
		t.Fatalf("result = %+v, want merged fast_forward", result)
	}

	got, ok := v.Get("a")
	if !ok || string(got) != "1" {
		t.Fatalf("Get(a) = %q, %v; want 1, true", got, ok)
	}
}

func TestCommit_NoOpWithNoChanges(t *testing.T) {
	store := kv.NewMemory()
	v, _ := Open(store, "main", "")
	before := v.CurrentCommit()

	result, err := v.Commit(nil, nil, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if result.Strategy != "no_op" || result.Commit != before {
		t.Fatalf("result = %+v, want no_op at %q", result, before)
	}
}

func TestCommit_RemovalTakesEffect(t *testing.T) {
	store := kv.NewMemory()
	v, _ := Open(store, "main", "")
	v.Commit(map[string][]byte{"a": []byte("1")}, nil, CommitOptions{})

	_, err := v.Commit(nil, map[string]bool{"a": true}, CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if v.Contains("a") {
		t.Fatal("Contains(a) true after removal commit")
	}
}

func TestCommit_DisjointAutoMerge(t *testing.T) {
	store := kv.NewMemory()
	base, _ := Open(store, "main", "")
	base.Commit(map[string][]byte{"base": []byte("0")}, nil, CommitOptions{})

	dev, err := Open(store, "main", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := base.Commit(map[string][]byte{"a": []byte("1")}, nil, CommitOptions{}); err != nil {
		t.Fatalf("base Commit: %v", err)
	}

	result, err := dev.Commit(map[string][]byte{"b": []byte("2")}, nil, CommitOptions{})
	if err != nil {
		t.Fatalf("dev Commit: %v", err)
	}

	if result.Strategy != "three_way" {
		t.Fatalf("strategy = %q, want three_way", result.Strategy)
	}
	if !containsStr(result.AutoMergedKeys, "a") {
		t.Fatalf("AutoMergedKeys = %v, want to contain a", result.AutoMergedKeys)
	}
	got, ok := dev.Get("a")
	if !ok || string(got) != "1" {
		t.Fatalf("dev.Get(a) = %q, %v; want 1, true", got, ok)
	}
	got, ok = dev.Get("b")
	if !ok || string(got) != "2" {
		t.Fatalf("dev.Get(b) = %q, %v; want 2, true", got, ok)
	}
}

func TestCommit_ConflictWithNoMergeFnRaises(t *testing.T) {
	store := kv.NewMemory()
	base, _ := Open(store, "main", "")
	base.Commit(map[string][]byte{"k": []byte("0")}, nil, CommitOptions{})

	dev, _ := Open(store, "main", "")
	base.Commit(map[string][]byte{"k": []byte("main")}, nil, CommitOptions{})

	_, err := dev.Commit(map[string][]byte{"k": []byte("dev")}, nil, CommitOptions{})
	if err == nil {
		t.Fatal("expected a merge conflict error")
	}
	mc, ok := err.(*MergeConflict)
	if !ok {
		t.Fatalf("error type = %T, want *MergeConflict", err)
	}
	if !containsStr(mc.ConflictingKeys, "k") {
		t.Fatalf("ConflictingKeys = %v, want to contain k", mc.ConflictingKeys)
	}
}

func TestCommit_ConcurrencyErrorAndRecovery(t *testing.T) {
	store := kv.NewMemory()
	v, _ := Open(store, "main", "")
	v.Commit(map[string][]byte{"a": []byte("1")}, nil, CommitOptions{})

	// Simulate a concurrent peer: overwrite branch head directly to an
	// unrelated commit id.
	if err := store.Set("__branch_head__main", []byte(`"unrelated"`)); err != nil {
		t.Fatal(err)
	}

	result, err := v.Commit(map[string][]byte{"b": []byte("2")}, nil, CommitOptions{OnConflict: "abandon"})
	if err != nil {
		t.Fatalf("Commit with abandon: %v", err)
	}
	if result.Merged {
		t.Fatal("expected abandon to report merged=false")
	}

	_, err = v.Commit(map[string][]byte{"b": []byte("2")}, nil, CommitOptions{})
	if err == nil {
		t.Fatal("expected ConcurrencyError with on_conflict=raise")
	}
	if _, ok := err.(*ConcurrencyError); !ok {
		t.Fatalf("error type = %T, want *ConcurrencyError", err)
	}

	if err := v.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if v.CurrentCommit() != "unrelated" {
		t.Fatalf("CurrentCommit after Refresh = %q, want unrelated", v.CurrentCommit())
	}
}

func TestBranchIsolation(t *testing.T) {
	store := kv.NewMemory()
	main, _ := Open(store, "main", "")

	dev, err := main.CreateBranch("dev", "")
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	main.Commit(map[string][]byte{"x": []byte("1")}, nil, CommitOptions{})
	dev.Commit(map[string][]byte{"y": []byte("2")}, nil, CommitOptions{})

	if main.Contains("y") {
		t.Fatal("main sees dev's key y")
	}
	if dev.Contains("x") {
		t.Fatal("dev sees main's key x")
	}

	branches := main.ListBranches()
	want := []string{"dev", "main"}
	if len(branches) != len(want) {
		t.Fatalf("ListBranches = %v, want %v", branches, want)
	}
	for i := range want {
		if branches[i] != want[i] {
			t.Fatalf("ListBranches[%d] = %q, want %q", i, branches[i], want[i])
		}
	}
}

func TestDeleteBranch_RefusesCurrentBranch(t *testing.T) {
	store := kv.NewMemory()
	v, _ := Open(store, "main", "")
	if err := v.DeleteBranch("main"); err != ErrCannotDeleteCurrentBranch {
		t.Fatalf("DeleteBranch(main) = %v, want ErrCannotDeleteCurrentBranch", err)
	}
}

func TestPeek_ReadsOtherBranchWithoutSwitching(t *testing.T) {
	store := kv.NewMemory()
	main, _ := Open(store, "main", "")
	dev, _ := main.CreateBranch("dev", "")
	dev.Commit(map[string][]byte{"y": []byte("2")}, nil, CommitOptions{})

	got, ok := main.Peek("y", "dev")
	if !ok || string(got) != "2" {
		t.Fatalf("Peek(y, dev) = %q, %v; want 2, true", got, ok)
	}
	if main.CurrentBranch() != "main" {
		t.Fatalf("Peek changed CurrentBranch to %q", main.CurrentBranch())
	}
}

func containsStr(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
