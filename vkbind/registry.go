package vkbind

import (
	"sync"

	"github.com/andewx/dieselcmd/internal/slot"
	"github.com/andewx/dieselcmd/native"
)

// registry maps Vulkan handles of one type to native handles. A native
// handle is the packed slot reference; it stops resolving once dropped.
type registry[T comparable] struct {
	mu    sync.Mutex
	table slot.Table[T]
	index map[T]slot.Ref
}

// put registers v, returning its existing handle if it is already known.
func (r *registry[T]) put(v T) native.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		r.index = make(map[T]slot.Ref)
	}
	if ref, ok := r.index[v]; ok {
		return native.Handle(ref.Pack())
	}
	ref := r.table.Insert(v)
	r.index[v] = ref
	return native.Handle(ref.Pack())
}

func (r *registry[T]) get(h native.Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.table.Get(slot.Unpack(uint64(h)))
	if !ok {
		var zero T
		return zero, false
	}
	return *v, true
}

// getAll resolves every handle of hs, failing if any is unknown.
func (r *registry[T]) getAll(hs []native.Handle) ([]T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs := make([]T, len(hs))
	for i, h := range hs {
		v, ok := r.table.Get(slot.Unpack(uint64(h)))
		if !ok {
			return nil, false
		}
		vs[i] = *v
	}
	return vs, true
}

func (r *registry[T]) drop(h native.Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.table.Remove(slot.Unpack(uint64(h)))
	if ok {
		delete(r.index, v)
	}
	return v, ok
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Len()
}
