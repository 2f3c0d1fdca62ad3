package kernel

// Malloc allocates size bytes from the kernel heap.
func (k *Kernel) Malloc(size int) ([]byte, error) {
	k.enter()

	p, err := []byte(nil), k.check(false)
	if err == nil {
		p, err = k.heap.Alloc(size)
	}

	k.exit()

	return p, err
}

// Calloc allocates count*size zeroed bytes.
func (k *Kernel) Calloc(count, size int) ([]byte, error) {
	k.enter()

	p, err := []byte(nil), k.check(false)
	if err == nil {
		p, err = k.heap.Calloc(count, size)
	}

	k.exit()

	return p, err
}

// Realloc resizes p. A nil p allocates and a zero size frees. On failure p
// stays valid.
func (k *Kernel) Realloc(p []byte, size int) ([]byte, error) {
	k.enter()

	q, err := []byte(nil), k.check(false)
	if err == nil {
		q, err = k.heap.Realloc(p, size)
	}

	k.exit()

	return q, err
}

// MallocAlign allocates size bytes aligned on align, a power of two that is a
// multiple of the pointer size.
func (k *Kernel) MallocAlign(size, align int) ([]byte, error) {
	k.enter()

	p, err := []byte(nil), k.check(false)
	if err == nil {
		p, err = k.heap.AllocAligned(size, align)
	}

	k.exit()

	return p, err
}

// Free returns p to the heap.
func (k *Kernel) Free(p []byte) error {
	k.enter()

	err := k.check(false)
	if err == nil {
		err = k.heap.Free(p)
	}

	k.exit()

	return err
}
