package kv

import "testing"

func TestWriteBehind_FlushAppliesQueuedWrites(t *testing.T) {
	backing := NewMemory()
	wb := NewWriteBehind(backing, 4)
	defer wb.Close()

	if err := wb.Set("a", []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := wb.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	v, ok := backing.Get("a")
	if !ok || string(v) != "1" {
		t.Fatalf("backing store after Flush = %q, %v; want 1, true", v, ok)
	}
}

func TestWriteBehind_GetPassesThroughToBacking(t *testing.T) {
	backing := NewMemory()
	backing.Set("a", []byte("1"))
	wb := NewWriteBehind(backing, 4)
	defer wb.Close()

	v, ok := wb.Get("a")
	if !ok || string(v) != "1" {
		t.Fatalf("Get = %q, %v; want 1, true", v, ok)
	}
}

func TestWriteBehind_CasFlushesFirst(t *testing.T) {
	backing := NewMemory()
	wb := NewWriteBehind(backing, 4)
	defer wb.Close()

	wb.Set("a", []byte("1"))
	ok, err := wb.Cas("a", []byte("2"), []byte("1"))
	if err != nil || !ok {
		t.Fatalf("Cas = %v, %v; want true, nil", ok, err)
	}
	v, _ := backing.Get("a")
	if string(v) != "2" {
		t.Fatalf("backing value after Cas = %q, want 2", v)
	}
}

func TestWriteBehind_MultipleWritesDrainInOrder(t *testing.T) {
	backing := NewMemory()
	wb := NewWriteBehind(backing, 1)
	defer wb.Close()

	wb.Set("a", []byte("1"))
	wb.Set("a", []byte("2"))
	wb.Set("a", []byte("3"))
	if err := wb.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	v, _ := backing.Get("a")
	if string(v) != "3" {
		t.Fatalf("backing value = %q, want 3 (last write wins)", v)
	}
}

func TestWriteBehind_CloseRejectsFurtherWrites(t *testing.T) {
	backing := NewMemory()
	wb := NewWriteBehind(backing, 4)
	wb.Close()

	if err := wb.Set("a", []byte("1")); err != ErrWriteBehindClosed {
		t.Fatalf("Set after Close = %v, want ErrWriteBehindClosed", err)
	}
}
