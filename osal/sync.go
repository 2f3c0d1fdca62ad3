package osal

// MutexOption modifies mutex creation.
type MutexOption uint32

// MutexNest allows the owner to lock the mutex again.
const MutexNest MutexOption = 1 << 0

// Mutexes manages mutexes with ownership, optional nesting and priority
// inheritance.
type Mutexes interface {
	MutexCreate(name string, opts MutexOption) (Mutex, error)
	MutexInit(b Block, name string, opts MutexOption) (Mutex, error)
	MutexDelete(m Mutex) error
	MutexDeinit(m Mutex) error
	MutexLock(m Mutex, timeout Tick) error
	MutexUnlock(m Mutex) error
}

// SemNoMax removes the upper bound of a semaphore.
const SemNoMax uint32 = ^uint32(0)

// Semaphores manages counting semaphores.
type Semaphores interface {
	SemCreate(name string, init, max uint32) (Sem, error)
	SemInit(b Block, name string, init, max uint32) (Sem, error)
	SemDelete(s Sem) error
	SemDeinit(s Sem) error
	SemWait(s Sem, timeout Tick) error

	// SemRelease hands one unit to the highest-priority waiter, or increments
	// the count if nobody waits.
	SemRelease(s Sem) error

	// SemReleaseAll wakes every waiter and leaves the count unchanged.
	SemReleaseAll(s Sem) error
}

// EventFlag is a set of event bits.
type EventFlag uint32

// EventOption modifies event waits and releases.
type EventOption uint32

// Event options. A wait takes exactly one of EventWaitAny and EventWaitAll,
// optionally with EventWaitClear. A release optionally takes
// EventReleaseKeep.
const (
	EventWaitAny     EventOption = 1 << 0
	EventWaitAll     EventOption = 1 << 1
	EventWaitClear   EventOption = 1 << 2
	EventReleaseKeep EventOption = 1 << 3
)

// Events manages event flag groups.
type Events interface {
	EventCreate(name string, init EventFlag) (Event, error)
	EventInit(b Block, name string, init EventFlag) (Event, error)
	EventDelete(e Event) error
	EventDeinit(e Event) error

	// EventWait returns the matched bits, that is the flags intersected with
	// expect at the time the wait was satisfied.
	EventWait(
		e Event,
		expect EventFlag,
		timeout Tick,
		opts EventOption,
	) (EventFlag, error)

	// EventRelease replaces the flag word with set, or ORs set into it if
	// opts has EventReleaseKeep, then wakes every satisfied waiter.
	EventRelease(e Event, set EventFlag, opts EventOption) error
}
