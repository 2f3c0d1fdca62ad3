package kernel

import "github.com/sarchlab/cosit/osal"

type slot[T any] struct {
	gen  uint32
	live bool
	obj  T
}

// table maps generational handles to objects of one kind. Slots are reused
// with a bumped generation, so stale handles never resolve.
type table[T any] struct {
	kind  osal.Kind
	slots []slot[T]
	free  []uint32
	count int
}

func newTable[T any](kind osal.Kind) table[T] {
	return table[T]{kind: kind}
}

func (t *table[T]) add(obj T) osal.Handle {
	var idx uint32

	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{})
	}

	s := &t.slots[idx]
	s.gen = (s.gen + 1) & (1<<24 - 1)
	if s.gen == 0 {
		s.gen = 1
	}

	s.live = true
	s.obj = obj
	t.count++

	return osal.NewHandle(t.kind, idx, s.gen)
}

func (t *table[T]) get(h osal.Handle) (T, bool) {
	var zero T

	if h.Kind() != t.kind || int(h.Index()) >= len(t.slots) {
		return zero, false
	}

	s := &t.slots[h.Index()]
	if !s.live || s.gen != h.Gen() {
		return zero, false
	}

	return s.obj, true
}

func (t *table[T]) remove(h osal.Handle) {
	if _, ok := t.get(h); !ok {
		return
	}

	var zero T

	s := &t.slots[h.Index()]
	s.live = false
	s.obj = zero
	t.free = append(t.free, h.Index())
	t.count--
}

func (t *table[T]) each(fn func(h osal.Handle, obj T)) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.live {
			fn(osal.NewHandle(t.kind, uint32(i), s.gen), s.obj)
		}
	}
}
