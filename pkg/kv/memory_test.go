package kv

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	if err := m.Set("a", []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := m.Get("a")
	if !ok || string(v) != "1" {
		t.Fatalf("Get = %q, %v; want 1, true", v, ok)
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("Get on missing key returned ok=true")
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	m := NewMemory()
	m.Set("a", []byte("1"))
	v, _ := m.Get("a")
	v[0] = 'x'
	v2, _ := m.Get("a")
	if string(v2) != "1" {
		t.Fatalf("mutating a Get result affected stored value: %q", v2)
	}
}

func TestMemory_RemoveMissingIsNoop(t *testing.T) {
	m := NewMemory()
	if err := m.Remove("missing"); err != nil {
		t.Fatalf("Remove on missing key returned error: %v", err)
	}
}

func TestMemory_CasCreateOnly(t *testing.T) {
	m := NewMemory()
	ok, err := m.Cas("a", []byte("1"), nil)
	if err != nil || !ok {
		t.Fatalf("Cas create = %v, %v; want true, nil", ok, err)
	}
	ok, err = m.Cas("a", []byte("2"), nil)
	if err != nil || ok {
		t.Fatalf("Cas create on existing key = %v, %v; want false, nil", ok, err)
	}
}

func TestMemory_CasCompareAndSwap(t *testing.T) {
	m := NewMemory()
	m.Set("a", []byte("1"))

	ok, err := m.Cas("a", []byte("2"), []byte("wrong"))
	if err != nil || ok {
		t.Fatalf("Cas with wrong expected = %v, %v; want false, nil", ok, err)
	}

	ok, err = m.Cas("a", []byte("2"), []byte("1"))
	if err != nil || !ok {
		t.Fatalf("Cas with correct expected = %v, %v; want true, nil", ok, err)
	}
	v, _ := m.Get("a")
	if string(v) != "2" {
		t.Fatalf("Get after Cas = %q, want 2", v)
	}
}

func TestMemory_Clear(t *testing.T) {
	m := NewMemory()
	m.Set("a", []byte("1"))
	m.Set("b", []byte("2"))
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(m.Keys()) != 0 {
		t.Fatalf("Keys after Clear = %v, want empty", m.Keys())
	}
}

// TestMemory_SetManyGetManyRoundTrip checks that any batch of keys written
// with SetMany comes back identically through GetMany, regardless of size
// or byte content.
func TestMemory_SetManyGetManyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMemory()
		kvs := rapid.MapOf(
			rapid.StringN(1, 10, 20),
			rapid.SliceOf(rapid.Byte()),
		).Draw(t, "kvs")

		if err := m.SetMany(kvs); err != nil {
			t.Fatalf("SetMany: %v", err)
		}

		keys := make([]string, 0, len(kvs))
		for k := range kvs {
			keys = append(keys, k)
		}
		got := m.GetMany(keys)
		if len(got) != len(kvs) {
			t.Fatalf("GetMany returned %d entries, want %d", len(got), len(kvs))
		}
		for k, want := range kvs {
			if !bytes.Equal(got[k], want) {
				t.Fatalf("GetMany[%q] = %v, want %v", k, got[k], want)
			}
		}
	})
}
