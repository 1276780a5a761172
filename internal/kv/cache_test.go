package kv_test

import (
	"testing"

	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/kv/memory"
)

func TestCacheCommitFlushesWrites(t *testing.T) {
	base := memory.NewStore()
	cache := kv.NewCache(base)

	if err := cache.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := base.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("write must not reach parent before commit")
	}

	if err := cache.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err = base.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get after commit: %v", err)
	}
	if string(got) != "1" {
		t.Fatalf("expected committed value, got %q", got)
	}
}

func TestCacheDiscardDropsWrites(t *testing.T) {
	base := memory.NewStore()
	if err := base.Set([]byte("a"), []byte("old")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := kv.NewCache(base)
	if err := cache.Set([]byte("a"), []byte("new")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Delete([]byte("b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	cache.Discard()

	got, err := cache.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "old" {
		t.Fatalf("expected parent value after discard, got %q", got)
	}
}

func TestCacheDeleteShadowsParent(t *testing.T) {
	base := memory.NewStore()
	if err := base.Set([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := kv.NewCache(base)
	if err := cache.Delete([]byte("a")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := cache.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected delete to shadow parent value")
	}

	if err := cache.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err = base.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if got != nil {
		t.Fatal("expected delete to reach parent on commit")
	}
}

func TestCacheIterateMergesLayers(t *testing.T) {
	base := memory.NewStore()
	for _, kvp := range [][2]string{{"p/a", "1"}, {"p/b", "2"}, {"q/c", "3"}} {
		if err := base.Set([]byte(kvp[0]), []byte(kvp[1])); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	cache := kv.NewCache(base)
	if err := cache.Set([]byte("p/b"), []byte("22")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Set([]byte("p/d"), []byte("4")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Delete([]byte("p/a")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var keys, values []string
	err := cache.Iterate([]byte("p/"), func(key, value []byte) (bool, error) {
		keys = append(keys, string(key))
		values = append(values, string(value))
		return true, nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	wantKeys := []string{"p/b", "p/d"}
	wantValues := []string{"22", "4"}
	if len(keys) != len(wantKeys) {
		t.Fatalf("expected keys %v, got %v", wantKeys, keys)
	}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] || values[i] != wantValues[i] {
			t.Fatalf("entry %d: got (%s,%s), want (%s,%s)", i, keys[i], values[i], wantKeys[i], wantValues[i])
		}
	}
}

func TestNestedCachesIsolateFailures(t *testing.T) {
	base := memory.NewStore()
	outer := kv.NewCache(base)
	if err := outer.Set([]byte("kept"), []byte("yes")); err != nil {
		t.Fatalf("set: %v", err)
	}

	inner := kv.NewCache(outer)
	if err := inner.Set([]byte("dropped"), []byte("no")); err != nil {
		t.Fatalf("set inner: %v", err)
	}
	inner.Discard()

	if err := outer.Commit(); err != nil {
		t.Fatalf("commit outer: %v", err)
	}
	kept, err := base.Get([]byte("kept"))
	if err != nil {
		t.Fatalf("get kept: %v", err)
	}
	if string(kept) != "yes" {
		t.Fatal("expected outer write to survive")
	}
	dropped, err := base.Get([]byte("dropped"))
	if err != nil {
		t.Fatalf("get dropped: %v", err)
	}
	if dropped != nil {
		t.Fatal("expected inner write to be discarded")
	}
}

func TestPrefixStoreNamespacesKeys(t *testing.T) {
	base := memory.NewStore()
	a := kv.NewPrefixStore(base, []byte("a/"))
	b := kv.NewPrefixStore(base, []byte("b/"))

	if err := a.Set([]byte("k"), []byte("from-a")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := b.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected prefix stores to be isolated")
	}

	var seen []string
	err = a.Iterate(nil, func(key, value []byte) (bool, error) {
		seen = append(seen, string(key))
		return true, nil
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 1 || seen[0] != "k" {
		t.Fatalf("expected stripped key %q, got %v", "k", seen)
	}
}

func TestPrefixEnd(t *testing.T) {
	if got := kv.PrefixEnd([]byte{0x01, 0x02}); string(got) != string([]byte{0x01, 0x03}) {
		t.Fatalf("unexpected prefix end %v", got)
	}
	if got := kv.PrefixEnd([]byte{0x01, 0xff}); string(got) != string([]byte{0x02}) {
		t.Fatalf("unexpected carry prefix end %v", got)
	}
	if got := kv.PrefixEnd([]byte{0xff, 0xff}); got != nil {
		t.Fatalf("expected nil end for all-ff prefix, got %v", got)
	}
}
