package kernel

import (
	"unsafe"

	"github.com/sarchlab/cosit/osal"
)

// MinStackSize is the smallest stack a task may be created with.
const MinStackSize = 128

// Static storage for the init variants. The control block is constructed
// inside the block, so initialised objects never touch the heap.
type (
	TaskBlock struct {
		osal.BlockBase
		cb tcb
	}

	TimerBlock struct {
		osal.BlockBase
		cb timerCB
	}

	MutexBlock struct {
		osal.BlockBase
		cb mutexCB
	}

	SemBlock struct {
		osal.BlockBase
		cb semCB
	}

	EventBlock struct {
		osal.BlockBase
		cb eventCB
	}

	// MailboxBlock holds the control block only. The slots come from the
	// buffer passed to MailboxInit.
	MailboxBlock struct {
		osal.BlockBase
		cb mailboxCB
	}

	// QueueBlock holds the control block only. The messages are stored in
	// the pool passed to QueueInit.
	QueueBlock struct {
		osal.BlockBase
		cb queueCB
	}

	WorkBlock struct {
		osal.BlockBase
		cb workCB
	}
)

// Sizes of the static blocks, in bytes.
const (
	TaskBlockSize    = unsafe.Sizeof(TaskBlock{})
	TimerBlockSize   = unsafe.Sizeof(TimerBlock{})
	MutexBlockSize   = unsafe.Sizeof(MutexBlock{})
	SemBlockSize     = unsafe.Sizeof(SemBlock{})
	EventBlockSize   = unsafe.Sizeof(EventBlock{})
	MailboxBlockSize = unsafe.Sizeof(MailboxBlock{})
	QueueBlockSize   = unsafe.Sizeof(QueueBlock{})
	WorkBlockSize    = unsafe.Sizeof(WorkBlock{})
)

// objHeader is shared by every control block. Created objects keep the heap
// memory they were charged. Initialised objects keep their block.
type objHeader struct {
	name  string
	mem   []byte
	block osal.Block
}

func (h *objHeader) static() bool {
	return h.block != nil
}

// blockOf returns the concrete block behind b if it is free for use.
func blockOf[T any, P interface {
	*T
	osal.Block
}](b osal.Block) (*T, bool) {
	p, ok := b.(P)
	blk := (*T)(p)
	if !ok || blk == nil || osal.InUse(b) {
		return nil, false
	}

	return blk, true
}

// charge takes n bytes from the kernel heap for a created object.
func (k *Kernel) charge(n uintptr) ([]byte, error) {
	mem, err := k.heap.Alloc(int(n))
	if err != nil {
		return nil, osal.ErrNoMem
	}

	return mem, nil
}

// discharge returns the memory of a created object, or the block of an
// initialised one.
func (k *Kernel) discharge(h *objHeader) {
	if h.block != nil {
		osal.Release(h.block)
		h.block = nil
	}

	if h.mem != nil {
		_ = k.heap.Free(h.mem)
		h.mem = nil
	}
}
