package kvgit

import (
	"os"
	"testing"

	"github.com/ashenfad/kvgit/pkg/gc"
	"github.com/ashenfad/kvgit/pkg/kv"
	"github.com/ashenfad/kvgit/pkg/staged"
)

func TestOpen_MemoryDefault(t *testing.T) {
	s, err := Open(Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Set("hello", "world")
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	v, ok := s.Get("hello")
	if !ok || v != "world" {
		t.Fatalf("Get(hello) = %v, %v", v, ok)
	}
}

func TestOpen_Disk(t *testing.T) {
	dir, err := os.MkdirTemp("", "kvgit-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	s, err := Open(Options{Backend: "disk", Path: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Set("k", "v")
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	v, ok := s.Get("k")
	if !ok || v != "v" {
		t.Fatalf("Get(k) = %v, %v", v, ok)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(Options{Backend: "bogus"}); err != ErrUnknownBackend {
		t.Fatalf("Open with bogus backend = %v, want ErrUnknownBackend", err)
	}
}

func TestOpenGC_RebasesUnderPressure(t *testing.T) {
	s, err := OpenGC(Options{HighWaterBytes: 100, LowWaterBytes: 50})
	if err != nil {
		t.Fatalf("OpenGC: %v", err)
	}

	big := make([]byte, 40)
	for i := range big {
		big[i] = 'x'
	}
	bigStr := string(big)

	s.Set("a", bigStr)
	s.Set("b", bigStr)
	s.Set("c", bigStr)
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit 1: %v", err)
	}

	s.Set("d", bigStr)
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit 2: %v", err)
	}

	collected, ok := s.View().(*gc.GC)
	if !ok {
		t.Fatalf("View() = %T, want *gc.GC", s.View())
	}
	result := collected.LastRebaseResult()
	if result == nil || !result.Performed {
		t.Fatalf("LastRebaseResult = %+v, want a performed rebase", result)
	}
}

func TestOpenGC_NoWaterMarkIsPlainView(t *testing.T) {
	s, err := OpenGC(Options{})
	if err != nil {
		t.Fatalf("OpenGC: %v", err)
	}
	if _, ok := s.View().(*gc.GC); ok {
		t.Fatal("View() is *gc.GC with HighWaterBytes == 0, want plain *versioned.View")
	}
}

func TestLive_ImmediateWrite(t *testing.T) {
	store := kv.NewMemory()
	live := NewLive(store, nil, nil)

	if err := live.Set("key", 42.0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := live.Get("key")
	if !ok || v != 42.0 {
		t.Fatalf("Get(key) = %v, %v", v, ok)
	}
	if !live.Contains("key") {
		t.Fatal("Contains(key) = false, want true")
	}
	if err := live.Remove("key"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if live.Contains("key") {
		t.Fatal("Contains(key) after Remove = true, want false")
	}
}
