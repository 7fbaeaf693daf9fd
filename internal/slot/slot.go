// Package slot implements a generation-checked arena. A Ref returned by Insert
// stays valid until the entry is removed; after that the slot's generation moves
// on and the old Ref no longer resolves, even if the index is reused.
package slot

// Ref addresses one entry in a Table.
type Ref struct {
	Index uint32
	Gen   uint32
}

// Pack encodes r into a single non-zero integer for any valid Ref.
func (r Ref) Pack() uint64 {
	return uint64(r.Gen)<<32 | uint64(r.Index)
}

// Unpack is the inverse of Pack.
func Unpack(v uint64) Ref {
	return Ref{Index: uint32(v), Gen: uint32(v >> 32)}
}

// IsZero reports whether r was never issued by a Table.
func (r Ref) IsZero() bool {
	return r.Gen == 0
}

type entry[T any] struct {
	val  T
	gen  uint32
	used bool
}

// Table is not safe for concurrent use.
type Table[T any] struct {
	entries []entry[T]
	free    []uint32
	live    int
}

// Insert stores v and returns its Ref.
func (t *Table[T]) Insert(v T) Ref {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.entries))
		t.entries = append(t.entries, entry[T]{})
	}
	e := &t.entries[idx]
	// Generations start at 1 so that the zero Ref never resolves.
	e.gen++
	if e.gen == 0 {
		e.gen = 1
	}
	e.val = v
	e.used = true
	t.live++
	return Ref{Index: idx, Gen: e.gen}
}

// Get returns a pointer to the value addressed by r, valid until the next
// Insert or Remove.
func (t *Table[T]) Get(r Ref) (*T, bool) {
	if int(r.Index) >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[r.Index]
	if !e.used || e.gen != r.Gen {
		return nil, false
	}
	return &e.val, true
}

// Contains reports whether r still resolves.
func (t *Table[T]) Contains(r Ref) bool {
	_, ok := t.Get(r)
	return ok
}

// Remove deletes the entry addressed by r and returns its value.
func (t *Table[T]) Remove(r Ref) (T, bool) {
	var zero T
	if !t.Contains(r) {
		return zero, false
	}
	e := &t.entries[r.Index]
	v := e.val
	e.val = zero
	e.used = false
	t.free = append(t.free, r.Index)
	t.live--
	return v, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	return t.live
}

// Each calls fn for every live entry in index order.
func (t *Table[T]) Each(fn func(Ref, *T)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.used {
			fn(Ref{Index: uint32(i), Gen: e.gen}, &e.val)
		}
	}
}

// Refs returns the Refs of all live entries in index order.
func (t *Table[T]) Refs() []Ref {
	refs := make([]Ref, 0, t.live)
	t.Each(func(r Ref, _ *T) {
		refs = append(refs, r)
	})
	return refs
}

// Clear removes every entry. All outstanding Refs stop resolving.
func (t *Table[T]) Clear() {
	for _, r := range t.Refs() {
		t.Remove(r)
	}
}
