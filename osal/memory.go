package osal

// Memory allocates from the kernel heap. None of the methods may be called
// from interrupt context.
type Memory interface {
	Malloc(size int) ([]byte, error)
	Calloc(count, size int) ([]byte, error)

	// Realloc resizes p. A nil p allocates and a zero size frees. On failure
	// p is left untouched.
	Realloc(p []byte, size int) ([]byte, error)

	// MallocAlign allocates size bytes whose address is a multiple of align.
	// Align must be a power of two and a multiple of the pointer size.
	MallocAlign(size, align int) ([]byte, error)

	Free(p []byte) error
}
