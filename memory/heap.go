// Package memory implements the bounded heap that backs kernel allocations.
package memory

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/sarchlab/cosit/osal"
)

// PtrSize is the size of a pointer. Every allocation is rounded to and
// aligned on a multiple of it.
const PtrSize = int(unsafe.Sizeof(uintptr(0)))

// Stats summarizes the state of a heap.
type Stats struct {
	Size       int
	Used       int
	Peak       int
	FreeBlocks int
	Allocs     uint64
	Frees      uint64
	Failures   uint64
}

type span struct {
	off  int
	size int
}

// Heap is a first-fit allocator over a fixed arena. Freed blocks are merged
// with their free neighbours. A Heap is safe for concurrent use.
type Heap struct {
	lock  sync.Mutex
	arena []byte
	base  uintptr
	free  []span
	used  map[uintptr]span
	stats Stats
}

// New creates a heap of size bytes.
func New(size int) *Heap {
	if size < 0 {
		size = 0
	}

	h := &Heap{
		arena: make([]byte, size),
		used:  make(map[uintptr]span),
	}
	h.stats.Size = size

	if size > 0 {
		h.base = uintptr(unsafe.Pointer(&h.arena[0]))
		h.free = []span{{off: 0, size: size}}
	}

	return h
}

// Alloc allocates size bytes aligned on the pointer size.
func (h *Heap) Alloc(size int) ([]byte, error) {
	return h.AllocAligned(size, PtrSize)
}

// AllocAligned allocates size bytes whose address is a multiple of align.
func (h *Heap) AllocAligned(size, align int) ([]byte, error) {
	if size <= 0 || !validAlign(align) {
		return nil, osal.ErrParam
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	return h.alloc(size, align)
}

// Calloc allocates count*size zeroed bytes.
func (h *Heap) Calloc(count, size int) ([]byte, error) {
	if count <= 0 || size <= 0 {
		return nil, osal.ErrParam
	}

	total := count * size
	if total/count != size {
		return nil, osal.ErrNoMem
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	p, err := h.alloc(total, PtrSize)
	if err != nil {
		return nil, err
	}

	clear(p)

	return p, nil
}

// Realloc resizes p, moving it if it cannot grow in place. A nil p allocates
// and a zero size frees. On failure p is left untouched.
func (h *Heap) Realloc(p []byte, size int) ([]byte, error) {
	if p == nil {
		return h.Alloc(size)
	}

	if size < 0 {
		return nil, osal.ErrParam
	}

	if size == 0 {
		return nil, h.Free(p)
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	key, blk, ok := h.lookup(p)
	if !ok {
		return nil, osal.ErrMemNotOwned
	}

	need := roundUp(size, PtrSize)
	if need <= blk.size {
		h.shrink(key, blk, need)
		return h.arena[blk.off : blk.off+size : blk.off+size], nil
	}

	if h.growInPlace(key, blk, need) {
		return h.arena[blk.off : blk.off+size : blk.off+size], nil
	}

	q, err := h.alloc(size, PtrSize)
	if err != nil {
		return nil, err
	}

	copy(q, h.arena[blk.off:blk.off+blk.size])
	h.release(key, blk)

	return q, nil
}

// Free returns p to the heap. Freeing nil does nothing.
func (h *Heap) Free(p []byte) error {
	if p == nil {
		return nil
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	key, blk, ok := h.lookup(p)
	if !ok {
		return osal.ErrMemNotOwned
	}

	h.release(key, blk)

	return nil
}

// Owns reports whether p is a live allocation of this heap.
func (h *Heap) Owns(p []byte) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	_, _, ok := h.lookup(p)

	return ok
}

// Stats returns a snapshot of the heap statistics.
func (h *Heap) Stats() Stats {
	h.lock.Lock()
	defer h.lock.Unlock()

	s := h.stats
	s.FreeBlocks = len(h.free)

	return s
}

func (h *Heap) alloc(size, align int) ([]byte, error) {
	need := roundUp(size, PtrSize)

	for i, f := range h.free {
		start := h.alignedOffset(f.off, align)
		pad := start - f.off

		if pad+need > f.size {
			continue
		}

		h.take(i, pad, need)
		h.used[h.base+uintptr(start)] = span{off: start, size: need}
		h.stats.Used += need
		h.stats.Allocs++

		if h.stats.Used > h.stats.Peak {
			h.stats.Peak = h.stats.Used
		}

		return h.arena[start : start+size : start+size], nil
	}

	h.stats.Failures++

	return nil, osal.ErrNoMem
}

// take carves [pad, pad+need) out of free span i, keeping the leftovers on
// both sides free.
func (h *Heap) take(i, pad, need int) {
	f := h.free[i]

	var rest []span
	if pad > 0 {
		rest = append(rest, span{off: f.off, size: pad})
	}

	if tail := f.size - pad - need; tail > 0 {
		rest = append(rest, span{off: f.off + pad + need, size: tail})
	}

	h.free = append(h.free[:i], append(rest, h.free[i+1:]...)...)
}

func (h *Heap) release(key uintptr, blk span) {
	delete(h.used, key)
	h.stats.Used -= blk.size
	h.stats.Frees++
	h.insertFree(blk)
}

func (h *Heap) shrink(key uintptr, blk span, need int) {
	if blk.size-need < PtrSize {
		return
	}

	tail := span{off: blk.off + need, size: blk.size - need}
	h.used[key] = span{off: blk.off, size: need}
	h.stats.Used -= tail.size
	h.insertFree(tail)
}

func (h *Heap) growInPlace(key uintptr, blk span, need int) bool {
	end := blk.off + blk.size
	extra := need - blk.size

	i := sort.Search(len(h.free), func(i int) bool {
		return h.free[i].off >= end
	})
	if i == len(h.free) || h.free[i].off != end || h.free[i].size < extra {
		return false
	}

	h.take(i, 0, extra)
	h.used[key] = span{off: blk.off, size: need}
	h.stats.Used += extra

	if h.stats.Used > h.stats.Peak {
		h.stats.Peak = h.stats.Used
	}

	return true
}

func (h *Heap) insertFree(s span) {
	i := sort.Search(len(h.free), func(i int) bool {
		return h.free[i].off > s.off
	})

	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = s

	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}

	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

func (h *Heap) lookup(p []byte) (uintptr, span, bool) {
	if cap(p) == 0 {
		return 0, span{}, false
	}

	key := uintptr(unsafe.Pointer(unsafe.SliceData(p)))
	blk, ok := h.used[key]

	return key, blk, ok
}

func (h *Heap) alignedOffset(off, align int) int {
	addr := h.base + uintptr(off)
	aligned := (addr + uintptr(align) - 1) &^ (uintptr(align) - 1)

	return off + int(aligned-addr)
}

func validAlign(align int) bool {
	return align > 0 && align&(align-1) == 0 && align%PtrSize == 0
}

func roundUp(n, m int) int {
	return (n + m - 1) / m * m
}
