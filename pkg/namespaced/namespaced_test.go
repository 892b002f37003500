package namespaced

import (
	"sort"
	"testing"

	"github.com/ashenfad/kvgit/pkg/kv"
	"github.com/ashenfad/kvgit/pkg/staged"
	"github.com/ashenfad/kvgit/pkg/versioned"
)

func newStaged(t *testing.T) *staged.Staged {
	t.Helper()
	store := kv.NewMemory()
	view, err := versioned.Open(store, "main", "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return staged.New(view, nil, nil)
}

func TestNamespaced_IsolatesKeys(t *testing.T) {
	s := newStaged(t)
	tenantA := New(s, "tenantA")
	tenantB := New(s, "tenantB")

	tenantA.Set("x", "a-value")
	tenantB.Set("x", "b-value")

	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	va, ok := tenantA.Get("x")
	if !ok || va != "a-value" {
		t.Fatalf("tenantA.Get(x) = %v, %v", va, ok)
	}
	vb, ok := tenantB.Get("x")
	if !ok || vb != "b-value" {
		t.Fatalf("tenantB.Get(x) = %v, %v", vb, ok)
	}
}

func TestNamespaced_KeysStripsPrefix(t *testing.T) {
	s := newStaged(t)
	tenant := New(s, "tenant")
	tenant.Set("a", 1.0)
	tenant.Set("b", 2.0)
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	keys := tenant.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("Keys() = %v", keys)
	}
}

func TestNamespaced_ChildAndDescendantKeys(t *testing.T) {
	s := newStaged(t)
	tenant := New(s, "tenant")
	tenant.Set("a/b/c", 1.0)
	tenant.Set("a/b/d", 2.0)
	tenant.Set("a/e", 3.0)
	if _, err := s.Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	children := tenant.ChildKeys("a")
	sort.Strings(children)
	if len(children) != 2 || children[0] != "b" || children[1] != "e" {
		t.Fatalf("ChildKeys(a) = %v", children)
	}

	descendants := tenant.DescendantKeys("a")
	sort.Strings(descendants)
	if len(descendants) != 3 {
		t.Fatalf("DescendantKeys(a) = %v", descendants)
	}
}

func TestNamespaced_NestedNamespace(t *testing.T) {
	s := newStaged(t)
	outer := New(s, "outer")
	inner := New(outer, "inner")

	inner.Set("k", "v")
	if _, err := inner.Root().Commit(staged.CommitOptions{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	v, ok := inner.Get("k")
	if !ok || v != "v" {
		t.Fatalf("inner.Get(k) = %v, %v", v, ok)
	}
	raw, ok := s.Get("outer/inner/k")
	if !ok || raw != "v" {
		t.Fatalf("s.Get(outer/inner/k) = %v, %v", raw, ok)
	}
}
