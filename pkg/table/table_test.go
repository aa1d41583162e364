package table

import (
	"testing"

	"ember/pkg/value"
)

func TestSetGetDelete(t *testing.T) {
	tb := New()
	key := value.NewString("answer")

	if _, ok := tb.Get(key); ok {
		t.Fatal("Get on empty table should miss")
	}

	if isNew := tb.Set(key, value.Number(42)); !isNew {
		t.Error("first Set of a key should report isNewKey")
	}
	v, ok := tb.Get(key)
	if !ok || v.AsNumber() != 42 {
		t.Fatalf("Get after Set = %v, %v; want 42, true", v, ok)
	}

	if isNew := tb.Set(key, value.Number(43)); isNew {
		t.Error("overwriting an existing key should not report isNewKey")
	}

	if !tb.Delete(key) {
		t.Error("Delete of a present key should succeed")
	}
	if _, ok := tb.Get(key); ok {
		t.Error("Get after Delete should miss")
	}
}

func TestTombstoneDoesNotBreakProbing(t *testing.T) {
	tb := New()
	a := value.NewString("a")
	b := value.NewString("b")
	tb.Set(a, value.Number(1))
	tb.Set(b, value.Number(2))
	tb.Delete(a)

	if v, ok := tb.Get(b); !ok || v.AsNumber() != 2 {
		t.Errorf("probing past a tombstone failed: got %v, %v", v, ok)
	}
}

func TestFindStringInterning(t *testing.T) {
	tb := New()
	s := value.NewString("hello")
	hash := value.FNV1a("hello")
	if got := tb.FindString("hello", hash); got != nil {
		t.Fatal("FindString should miss before the string is interned")
	}
	tb.Set(s, value.Bool(true))
	if got := tb.FindString("hello", hash); got != s {
		t.Error("FindString should return the exact interned StringObj")
	}
}

func TestGrowPreservesEntries(t *testing.T) {
	tb := New()
	keys := make([]*value.StringObj, 0, 64)
	for i := 0; i < 64; i++ {
		s := value.NewString(string(rune('a' + i%26)))
		keys = append(keys, s)
		tb.Set(s, value.Number(float64(i)))
	}
	for i, k := range keys {
		v, ok := tb.Get(k)
		if !ok || v.AsNumber() != float64(i) {
			t.Errorf("entry %d lost after growth: got %v, %v", i, v, ok)
		}
	}
}

func TestAddAll(t *testing.T) {
	src := New()
	dst := New()
	a := value.NewString("a")
	b := value.NewString("b")
	src.Set(a, value.Number(1))
	src.Set(b, value.Number(2))

	dst.AddAll(src)
	if v, ok := dst.Get(a); !ok || v.AsNumber() != 1 {
		t.Error("AddAll should copy every live entry")
	}
}

func TestRemoveUnmarked(t *testing.T) {
	tb := New()
	marked := value.NewString("marked")
	unmarked := value.NewString("unmarked")
	marked.Obj.Marked = true
	tb.Set(marked, value.Bool(true))
	tb.Set(unmarked, value.Bool(true))

	tb.RemoveUnmarked()

	if _, ok := tb.Get(marked); !ok {
		t.Error("marked entry should survive RemoveUnmarked")
	}
	if _, ok := tb.Get(unmarked); ok {
		t.Error("unmarked entry should be tombstoned by RemoveUnmarked")
	}
}
