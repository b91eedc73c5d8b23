package ring

import "testing"

func TestSPSCPushPopOrder(t *testing.T) {
	r := New[int](8)
	for i := 0; i < 5; i++ {
		if !r.TryPush(i) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := r.TryPop()
		if !ok {
			t.Fatalf("pop %d: expected ok", i)
		}
		if v != i {
			t.Fatalf("pop %d: got %d, want %d (reordered)", i, v, i)
		}
	}
	if _, ok := r.TryPop(); ok {
		t.Fatal("expected empty ring to report not-ok")
	}
}

func TestSPSCFullRejectsPush(t *testing.T) {
	r := New[int](4) // usable capacity 3
	pushed := 0
	for r.TryPush(pushed) {
		pushed++
	}
	if pushed != r.Cap() {
		t.Fatalf("pushed %d items, want capacity %d", pushed, r.Cap())
	}
	if r.TryPush(999) {
		t.Fatal("expected push to fail when full")
	}
}

func TestSPSCNoLossNoDuplication(t *testing.T) {
	r := New[int](16)
	const n = 1000
	var got []int
	for i := 0; i < n; i++ {
		for !r.TryPush(i) {
			if v, ok := r.TryPop(); ok {
				got = append(got, v)
			}
		}
	}
	for {
		v, ok := r.TryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != n {
		t.Fatalf("got %d items, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("item %d out of order: got %d", i, v)
		}
	}
}
