// Package main demonstrates kvgit, a versioned key-value store built on
// a content-addressed commit log.
//
// This example shows:
// - Basic Set/Get/Remove through the staged typed-value layer
// - Committing changes and time-travel reads via checkout
// - Diffing between commits and viewing history
// - Branch creation and isolation
// - Three-way auto-merge on disjoint writes from two writers
// - Conflict resolution via a registered counter merge function
// - GC water-mark rebase reclaiming cold keys
//
// Run with: go run ./cmd/kvgitdemo
package main

import (
	"fmt"
	"log"

	"github.com/ashenfad/kvgit/pkg/gc"
	"github.com/ashenfad/kvgit/pkg/kv"
	"github.com/ashenfad/kvgit/pkg/kvgit"
	"github.com/ashenfad/kvgit/pkg/merge"
	"github.com/ashenfad/kvgit/pkg/staged"
	"github.com/ashenfad/kvgit/pkg/versioned"
)

const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	dim     = "\033[2m"
	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	cyan    = "\033[36m"
	magenta = "\033[35m"
)

func main() {
	printHeader("kvgit Demo")
	fmt.Println()

	printStep(1, "Creating an in-memory store")
	s, err := kvgit.Open(kvgit.Options{})
	if err != nil {
		log.Fatalf("Open: %v", err)
	}
	view := s.View().(*versioned.View)
	fmt.Printf("   Branch: %s%s%s\n", cyan, view.CurrentBranch(), reset)
	fmt.Println()

	printStep(2, "Basic operations")
	s.Set("user:1", "Alice")
	s.Set("user:2", "Bob")
	s.Set("user:3", "Charlie")
	fmt.Printf("   Staged 3 users: %sAlice%s, %sBob%s, %sCharlie%s\n",
		green, reset, green, reset, green, reset)
	v, _ := s.Get("user:1")
	fmt.Printf("   Get %suser:1%s (before commit, from the staging buffer) = %s%v%s\n",
		yellow, reset, green, v, reset)
	fmt.Println()

	printStep(3, "First commit")
	result1, err := s.Commit(staged.CommitOptions{Info: map[string]any{"message": "Initial users"}})
	if err != nil {
		log.Fatalf("Commit: %v", err)
	}
	commit1 := result1.Commit
	fmt.Printf("   Commit 1: %s%s%s strategy=%s%s%s\n", yellow, short(commit1), reset, dim, result1.Strategy, reset)
	fmt.Println()

	printStep(4, "Making changes")
	s.Set("user:1", "Alice Smith")
	s.Set("user:4", "Diana")
	s.Remove("user:3")
	fmt.Printf("   %s~%s Modified user:1 -> 'Alice Smith'\n", yellow, reset)
	fmt.Printf("   %s+%s Added    user:4 -> 'Diana'\n", green, reset)
	fmt.Printf("   %s-%s Removed  user:3\n", red, reset)
	fmt.Println()

	printStep(5, "Second commit")
	result2, err := s.Commit(staged.CommitOptions{Info: map[string]any{"message": "Updated users"}})
	if err != nil {
		log.Fatalf("Commit: %v", err)
	}
	commit2 := result2.Commit
	fmt.Printf("   Commit 2: %s%s%s strategy=%s%s%s\n", yellow, short(commit2), reset, dim, result2.Strategy, reset)
	fmt.Println()

	printStep(6, "Time travel via checkout")
	old, ok := s.Checkout(commit1, "")
	if !ok {
		log.Fatal("checkout commit1 failed")
	}
	oldVal, _ := old.Get("user:1")
	newVal, _ := s.Get("user:1")
	fmt.Printf("   user:1 at commit 1: %s%v%s\n", green, oldVal, reset)
	fmt.Printf("   user:1 at commit 2: %s%v%s\n", green, newVal, reset)
	if charlie, ok := old.Get("user:3"); ok {
		fmt.Printf("   user:3 at commit 1: %s%v%s %s(still readable from history)%s\n", green, charlie, reset, dim, reset)
	}
	if _, ok := s.Get("user:3"); !ok {
		fmt.Printf("   user:3 at commit 2: %s<removed>%s\n", red, reset)
	}
	fmt.Println()

	printStep(7, "Diff between commits")
	d := view.Diff(commit1, commit2)
	fmt.Printf("   %sAdded%s: %v\n", green, reset, keysOf(d.Added))
	fmt.Printf("   %sModified%s: %v\n", yellow, reset, keysOf(d.Modified))
	fmt.Printf("   %sRemoved%s: %v\n", red, reset, keysOf(d.Removed))
	fmt.Println()

	printStep(8, "History")
	for i, c := range view.History("", false) {
		info, _ := view.CommitInfo(c)
		fmt.Printf("   %s[%d]%s %s%s%s %v\n", dim, i+1, reset, yellow, short(c), reset, info)
	}
	fmt.Println()

	printStep(9, "Branch isolation")
	dev, err := s.CreateBranch("dev")
	if err != nil {
		log.Fatalf("CreateBranch: %v", err)
	}
	dev.Set("feature-flag", true)
	if _, err := dev.Commit(staged.CommitOptions{}); err != nil {
		log.Fatalf("Commit on dev: %v", err)
	}
	if _, ok := s.Get("feature-flag"); !ok {
		fmt.Printf("   main.Get(feature-flag): %s<absent>%s %s(dev's write stayed on dev)%s\n", red, reset, dim, reset)
	}
	fmt.Printf("   Branches: %v\n", s.ListBranches())
	fmt.Println()

	printStep(10, "Concurrent disjoint writers auto-merge")
	concurrentMergeDemo()
	fmt.Println()

	printStep(11, "Counter merge resolves a real conflict")
	counterMergeDemo()
	fmt.Println()

	printStep(12, "GC rebase under water-mark pressure")
	gcDemo()
	fmt.Println()

	printHeader("Demo complete")
}

// concurrentMergeDemo shows two views sharing one backend committing
// disjoint keys: the second commit can't fast-forward (HEAD moved) and
// instead auto-merges via the three-way path, keeping both writes.
func concurrentMergeDemo() {
	backend := kv.NewMemory()
	a, err := versioned.Open(backend, "main", "")
	if err != nil {
		log.Fatal(err)
	}
	b, err := versioned.Open(backend, "main", "")
	if err != nil {
		log.Fatal(err)
	}

	if _, err := a.Commit(map[string][]byte{"a": []byte("1")}, nil, versioned.CommitOptions{}); err != nil {
		log.Fatal(err)
	}
	result, err := b.Commit(map[string][]byte{"b": []byte("2")}, nil, versioned.CommitOptions{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("   writer B's commit: strategy=%s%s%s auto_merged=%v\n", magenta, result.Strategy, reset, result.AutoMergedKeys)
	av, _ := b.Get("a")
	bv, _ := b.Get("b")
	fmt.Printf("   after merge, writer B sees a=%s b=%s (nothing lost)\n", av, bv)
}

// counterMergeDemo registers the Counter merge function so two
// independent increments off the same base both land, rather than one
// clobbering the other: merged = ours + theirs - old.
func counterMergeDemo() {
	backend := kv.NewMemory()
	a, err := versioned.Open(backend, "main", "")
	if err != nil {
		log.Fatal(err)
	}
	b, err := versioned.Open(backend, "main", "")
	if err != nil {
		log.Fatal(err)
	}

	if _, err := a.Commit(map[string][]byte{"hits": []byte("10")}, nil, versioned.CommitOptions{}); err != nil {
		log.Fatal(err)
	}
	if err := b.Refresh(); err != nil {
		log.Fatal(err)
	}
	b.SetMergeFn("hits", counterBytesFn())

	if _, err := a.Commit(map[string][]byte{"hits": []byte("15")}, nil, versioned.CommitOptions{}); err != nil {
		log.Fatal(err)
	}
	result, err := b.Commit(map[string][]byte{"hits": []byte("20")}, nil, versioned.CommitOptions{})
	if err != nil {
		log.Fatal(err)
	}
	hits, _ := b.Get("hits")
	fmt.Printf("   B's merge: strategy=%s%s%s, hits=%s%s%s (20 + 15 - 10, both increments counted)\n",
		magenta, result.Strategy, reset, green, hits, reset)
}

func counterBytesFn() merge.Fn {
	toTyped := merge.Counter()
	return func(old, ours, theirs []byte) ([]byte, error) {
		var oldVal any
		if old != nil {
			oldVal = parseFloat(old)
		}
		merged, err := toTyped(oldVal, parseFloat(ours), parseFloat(theirs))
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf("%d", int64(merged.(float64)))), nil
	}
}

func parseFloat(b []byte) float64 {
	var n float64
	fmt.Sscanf(string(b), "%f", &n)
	return n
}

// gcDemo commits several keys past a configured high-water mark and
// shows the resulting rebase dropping the coldest ones.
func gcDemo() {
	s, err := kvgit.OpenGC(kvgit.Options{HighWaterBytes: 100, LowWaterBytes: 50})
	if err != nil {
		log.Fatal(err)
	}
	pad := make([]byte, 40)
	for i := range pad {
		pad[i] = 'x'
	}
	blob := string(pad)

	s.Set("a", blob)
	s.Set("b", blob)
	s.Set("c", blob)
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		log.Fatal(err)
	}
	s.Set("d", blob)
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		log.Fatal(err)
	}

	collected := s.View().(*gc.GC)
	result := collected.LastRebaseResult()
	if result == nil {
		fmt.Println("   no rebase ran yet")
		return
	}
	fmt.Printf("   performed=%v dropped=%v kept=%v total %d -> %d bytes\n",
		result.Performed, result.DroppedKeys, result.KeptKeys, result.TotalSizeBefore, result.TotalSizeAfter)
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func printHeader(title string) {
	line := "========================================"
	fmt.Printf("%s%s%s\n", magenta, line, reset)
	fmt.Printf("%s%s  %s%s\n", bold, magenta, title, reset)
	fmt.Printf("%s%s%s\n", magenta, line, reset)
}

func printStep(num int, title string) {
	fmt.Printf("%s%d. %s%s\n", bold, num, title, reset)
}
