package slot

import "testing"

func TestInsertGet(t *testing.T) {
	var tab Table[string]
	a := tab.Insert("a")
	b := tab.Insert("b")
	if a == b {
		t.Fatalf("Insert returned the same ref twice: %v", a)
	}
	if v, ok := tab.Get(a); !ok || *v != "a" {
		t.Errorf("Get(a)\nhave %v %v\nwant a true", v, ok)
	}
	if v, ok := tab.Get(b); !ok || *v != "b" {
		t.Errorf("Get(b)\nhave %v %v\nwant b true", v, ok)
	}
	if n := tab.Len(); n != 2 {
		t.Errorf("Len\nhave %d\nwant 2", n)
	}
}

func TestZeroRef(t *testing.T) {
	var tab Table[int]
	tab.Insert(1)
	var r Ref
	if !r.IsZero() {
		t.Error("zero Ref: IsZero should be true")
	}
	if tab.Contains(r) {
		t.Error("zero Ref must never resolve")
	}
}

func TestStaleRef(t *testing.T) {
	var tab Table[int]
	old := tab.Insert(1)
	if _, ok := tab.Remove(old); !ok {
		t.Fatal("Remove: unexpected failure")
	}
	if tab.Contains(old) {
		t.Error("removed ref still resolves")
	}
	if _, ok := tab.Remove(old); ok {
		t.Error("second Remove should fail")
	}
	fresh := tab.Insert(2)
	if fresh.Index != old.Index {
		t.Fatalf("index not reused\nhave %d\nwant %d", fresh.Index, old.Index)
	}
	if fresh.Gen == old.Gen {
		t.Error("reused slot kept its generation")
	}
	if tab.Contains(old) {
		t.Error("stale ref resolves after slot reuse")
	}
	if v, _ := tab.Get(fresh); *v != 2 {
		t.Errorf("Get(fresh)\nhave %d\nwant 2", *v)
	}
}

func TestPack(t *testing.T) {
	for _, r := range []Ref{{0, 1}, {7, 3}, {1<<32 - 1, 1<<32 - 1}} {
		v := r.Pack()
		if v == 0 {
			t.Errorf("Pack(%v) == 0", r)
		}
		if u := Unpack(v); u != r {
			t.Errorf("Unpack(Pack(%v))\nhave %v", r, u)
		}
	}
}

func TestEachAndClear(t *testing.T) {
	var tab Table[int]
	refs := []Ref{tab.Insert(10), tab.Insert(20), tab.Insert(30)}
	tab.Remove(refs[1])
	sum := 0
	tab.Each(func(_ Ref, v *int) { sum += *v })
	if sum != 40 {
		t.Errorf("Each sum\nhave %d\nwant 40", sum)
	}
	if got := tab.Refs(); len(got) != 2 || got[0] != refs[0] || got[1] != refs[2] {
		t.Errorf("Refs\nhave %v\nwant [%v %v]", got, refs[0], refs[2])
	}
	tab.Clear()
	if tab.Len() != 0 {
		t.Errorf("Len after Clear\nhave %d\nwant 0", tab.Len())
	}
	for _, r := range refs {
		if tab.Contains(r) {
			t.Errorf("ref %v resolves after Clear", r)
		}
	}
}
