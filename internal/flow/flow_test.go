package flow

import (
	"testing"
	"time"

	"github.com/vigilnet/vigil/internal/decode"
)

func key(n uint16) Key {
	return Key{SrcIP: uint32(n), DstIP: 1, SrcPort: n, DstPort: 80, Protocol: decode.ProtoTCP}
}

func TestCapacityAndMRUPresence(t *testing.T) {
	tbl := New(4)
	now := time.Now()
	keys := []Key{key(1), key(2), key(3), key(4), key(5)}
	for _, k := range keys {
		tbl.Touch(k, now)
	}
	if tbl.Len() != 4 {
		t.Fatalf("len = %d, want 4", tbl.Len())
	}
	if _, ok := tbl.m.Get(keys[0]); ok {
		t.Fatal("first key should have been evicted")
	}
	for _, k := range keys[1:] {
		if _, ok := tbl.m.Get(k); !ok {
			t.Fatalf("key %+v should still be present", k)
		}
	}
}

func TestDirectionalityPreserved(t *testing.T) {
	tbl := New(8)
	now := time.Now()
	ab := Key{SrcIP: 1, DstIP: 2, SrcPort: 1000, DstPort: 80, Protocol: decode.ProtoTCP}
	ba := Key{SrcIP: 2, DstIP: 1, SrcPort: 80, DstPort: 1000, Protocol: decode.ProtoTCP}
	tbl.Touch(ab, now)
	tbl.Touch(ba, now)
	if tbl.Len() != 2 {
		t.Fatalf("len = %d, want 2 distinct directional flows", tbl.Len())
	}
}

func TestEvictionCallbackReportsLRUKey(t *testing.T) {
	tbl := New(2)
	var evicted []Key
	tbl.OnEvict(func(k Key, _ *Entry) { evicted = append(evicted, k) })
	now := time.Now()
	tbl.Touch(key(1), now)
	tbl.Touch(key(2), now)
	tbl.Touch(key(3), now)
	if len(evicted) != 1 || evicted[0] != key(1) {
		t.Fatalf("evicted = %v, want [key(1)]", evicted)
	}
}
