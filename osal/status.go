package osal

import (
	"errors"
	"fmt"
)

// Status is the result code shared by every backend. Zero is success and
// every failure is negative. Bits 12 to 15 of the magnitude name the
// subsystem that produced the code.
type Status int32

// Subsystem identifies the owner of a status code.
type Subsystem uint8

// The subsystems that own status codes.
const (
	SubsystemGeneric   Subsystem = 0x0
	SubsystemTask      Subsystem = 0x1
	SubsystemMemory    Subsystem = 0x2
	SubsystemTimer     Subsystem = 0x3
	SubsystemMutex     Subsystem = 0x4
	SubsystemSem       Subsystem = 0x5
	SubsystemEvent     Subsystem = 0x7
	SubsystemQueue     Subsystem = 0x8
	SubsystemMailbox   Subsystem = 0x9
	SubsystemWorkQueue Subsystem = 0xA
)

// OK is the single success value.
const OK Status = 0

// Generic failures.
const (
	ErrUnknown   Status = -0x0001
	ErrParam     Status = -0x0002
	ErrNoMem     Status = -0x0003
	ErrISR       Status = -0x0004
	ErrPerm      Status = -0x0005
	ErrTimeout   Status = -0x0006
	ErrDestroyed Status = -0x0007
)

// Task failures.
const (
	ErrTaskNotRR       Status = -0x1001
	ErrTaskNotSleeping Status = -0x1002
)

// Memory failures.
const (
	ErrMemNotOwned Status = -0x2001
)

// Timer failures.
const (
	ErrTimerStopped Status = -0x3001
)

// Mutex failures.
const (
	ErrMutexNotOwner Status = -0x4001
	ErrMutexNesting  Status = -0x4002
	ErrMutexOverflow Status = -0x4003
)

// Semaphore failures.
const (
	ErrSemOverflow Status = -0x5001
)

// Message queue failures.
const (
	ErrQueueFull Status = -0x8001
)

// Mailbox failures.
const (
	ErrMailboxFull Status = -0x9001
)

// Work queue failures.
const (
	ErrWorkNotFound Status = -0xA001
	ErrWorkRunning  Status = -0xA002
)

var statusNames = map[Status]string{
	OK:                 "ok",
	ErrUnknown:         "unknown error",
	ErrParam:           "invalid parameter",
	ErrNoMem:           "out of memory",
	ErrISR:             "not allowed in interrupt context",
	ErrPerm:            "permission denied",
	ErrTimeout:         "timeout",
	ErrDestroyed:       "object destroyed",
	ErrTaskNotRR:       "task is not round-robin scheduled",
	ErrTaskNotSleeping: "task is not sleeping",
	ErrMemNotOwned:     "memory not owned by heap",
	ErrTimerStopped:    "timer stopped",
	ErrMutexNotOwner:   "mutex not owned by caller",
	ErrMutexNesting:    "mutex nesting not enabled",
	ErrMutexOverflow:   "mutex nesting overflow",
	ErrSemOverflow:     "semaphore overflow",
	ErrQueueFull:       "message queue full",
	ErrMailboxFull:     "mailbox full",
	ErrWorkNotFound:    "work not pending",
	ErrWorkRunning:     "work running",
}

// Error returns the name of the status.
func (s Status) Error() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("status %#x", int32(s))
}

// Subsystem returns the subsystem that owns the status.
func (s Status) Subsystem() Subsystem {
	if s >= 0 {
		return SubsystemGeneric
	}

	return Subsystem((-s >> 12) & 0xF)
}

// StatusOf converts an error returned by a backend into a status. A nil error
// is OK and errors that do not wrap a Status are ErrUnknown.
func StatusOf(err error) Status {
	if err == nil {
		return OK
	}

	var s Status
	if errors.As(err, &s) {
		return s
	}

	return ErrUnknown
}
