package codec

import (
	"testing"

	"pgregory.net/rapid"
)

func TestContentHash_DeterministicAndLength(t *testing.T) {
	hash, err := ContentHash(nil, map[string]string{}, map[string][]byte{}, nil)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if len(hash) != 40 {
		t.Fatalf("len(hash) = %d, want 40", len(hash))
	}

	hash2, err := ContentHash(nil, map[string]string{}, map[string][]byte{}, nil)
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	if hash != hash2 {
		t.Fatalf("ContentHash not deterministic: %q != %q", hash, hash2)
	}
}

func TestContentHash_DiffersOnAnyInput(t *testing.T) {
	base, _ := ContentHash([]string{"p1"}, map[string]string{"a": "x"}, map[string][]byte{"a": []byte("v")}, nil)

	cases := []struct {
		name string
		hash string
	}{
		{"parents", must(ContentHash([]string{"p2"}, map[string]string{"a": "x"}, map[string][]byte{"a": []byte("v")}, nil))},
		{"keyset", must(ContentHash([]string{"p1"}, map[string]string{"a": "y"}, map[string][]byte{"a": []byte("v")}, nil))},
		{"update", must(ContentHash([]string{"p1"}, map[string]string{"a": "x"}, map[string][]byte{"a": []byte("w")}, nil))},
		{"info", must(ContentHash([]string{"p1"}, map[string]string{"a": "x"}, map[string][]byte{"a": []byte("v")}, map[string]any{"k": "v"}))},
	}
	for _, c := range cases {
		if c.hash == base {
			t.Errorf("%s: expected hash to differ from base, got same value %q", c.name, base)
		}
	}
}

func must(s string, err error) string {
	if err != nil {
		panic(err)
	}
	return s
}

func TestMetaRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(t, "n")
		meta := make(map[string]MetaEntry, n)
		for i := 0; i < n; i++ {
			key := rapid.StringN(1, 10, 20).Draw(t, "key")
			meta[key] = MetaEntry{
				LastTouch: rapid.Int64Range(0, 1_000_000).Draw(t, "last_touch"),
				Size:      rapid.IntRange(0, 1_000_000).Draw(t, "size"),
				CreatedAt: rapid.Float64Range(0, 2_000_000_000).Draw(t, "created_at"),
			}
		}

		raw, err := MetaToBytes(meta)
		if err != nil {
			t.Fatalf("MetaToBytes: %v", err)
		}
		got, err := MetaFromBytes(raw)
		if err != nil {
			t.Fatalf("MetaFromBytes: %v", err)
		}
		if len(got) != len(meta) {
			t.Fatalf("round trip length = %d, want %d", len(got), len(meta))
		}
		for k, want := range meta {
			if got[k] != want {
				t.Fatalf("round trip[%q] = %+v, want %+v", k, got[k], want)
			}
		}
	})
}

func TestBlobKeyAndPendingBlobKey(t *testing.T) {
	if got := BlobKey("abc123", "foo"); got != "abc123:foo" {
		t.Fatalf("BlobKey = %q, want abc123:foo", got)
	}
	if got := PendingBlobKey("foo"); got != "<pending:foo>" {
		t.Fatalf("PendingBlobKey = %q, want <pending:foo>", got)
	}
}

func TestReservedKeyFormats(t *testing.T) {
	if got := CommitKeysetKey("c1"); got != "__commit_keyset__c1" {
		t.Fatalf("CommitKeysetKey = %q", got)
	}
	if got := ParentCommitKey("c1"); got != "__parent_commit__c1" {
		t.Fatalf("ParentCommitKey = %q", got)
	}
	if got := BranchHeadKey("main"); got != "__branch_head__main" {
		t.Fatalf("BranchHeadKey = %q", got)
	}
	if got := MetaKey("c1"); got != "__meta__c1" {
		t.Fatalf("MetaKey = %q", got)
	}
	if got := TotalVarSizeKey("c1"); got != "__total_var_size__c1" {
		t.Fatalf("TotalVarSizeKey = %q", got)
	}
	if got := InfoKey("c1"); got != "__info__c1" {
		t.Fatalf("InfoKey = %q", got)
	}
}
