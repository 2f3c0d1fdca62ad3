package osal

import "fmt"

// Kind tags the object type a handle refers to.
type Kind uint8

// Object kinds.
const (
	KindInvalid Kind = iota
	KindTask
	KindTimer
	KindMutex
	KindSem
	KindEvent
	KindMailbox
	KindQueue
	KindWork
	KindWorkQueue
)

var kindNames = [...]string{
	"invalid", "task", "timer", "mutex", "sem", "event",
	"mailbox", "queue", "work", "workqueue",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// A Handle names a kernel object without exposing its storage. It packs the
// object kind, a generation counter and a slot index, so a backend can reject
// handles to objects that were deleted or that belong to another kind.
type Handle uint64

const (
	genBits  = 24
	genMask  = 1<<genBits - 1
	kindBits = 8
)

// NewHandle builds a handle. Backends call it when they insert an object
// into their object table. The generation must be non-zero.
func NewHandle(kind Kind, index uint32, gen uint32) Handle {
	return Handle(uint64(kind)<<(32+genBits) |
		uint64(gen&genMask)<<32 |
		uint64(index))
}

// Kind returns the object kind.
func (h Handle) Kind() Kind {
	return Kind(h >> (32 + genBits))
}

// Index returns the slot index.
func (h Handle) Index() uint32 {
	return uint32(h)
}

// Gen returns the generation.
func (h Handle) Gen() uint32 {
	return uint32(h>>32) & genMask
}

// IsNil reports whether the handle is the zero handle.
func (h Handle) IsNil() bool {
	return h == 0
}

func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}

	return fmt.Sprintf("%s#%d.%d", h.Kind(), h.Index(), h.Gen())
}

// Typed handles.
type (
	Task      Handle
	Timer     Handle
	Mutex     Handle
	Sem       Handle
	Event     Handle
	Mailbox   Handle
	Queue     Handle
	Work      Handle
	WorkQueue Handle
)
