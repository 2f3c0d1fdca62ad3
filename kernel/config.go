package kernel

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

// Mode selects how kernel time advances.
type Mode uint8

const (
	// ModeVirtual advances the tick only when tasks spin or when nothing can
	// run, in which case the clock jumps to the next deadline.
	ModeVirtual Mode = iota

	// ModeRealtime advances the tick from a TickSource.
	ModeRealtime
)

func (m Mode) String() string {
	if m == ModeRealtime {
		return "realtime"
	}

	return "virtual"
}

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid kernel config")

// Config describes a kernel.
type Config struct {
	Freq                 timing.Freq
	Mode                 Mode
	TickSource           timing.TickSource
	HeapSize             int
	PriorityLevels       int
	DefaultTimeSlice     osal.Tick
	MainPriority         uint8
	MainStackSize        int
	SysWorkQueue         bool
	SysWorkQueuePriority uint8
	SysWorkQueueStack    int
	NoPriorityIPC        bool
	Logger               *log.Logger
}

// DefaultConfig returns a 1 kHz virtual kernel with a 64 KiB heap.
func DefaultConfig() Config {
	return Config{
		Freq:                 1 * timing.KHz,
		Mode:                 ModeVirtual,
		HeapSize:             64 << 10,
		PriorityLevels:       int(osal.PriorityMax) + 1,
		DefaultTimeSlice:     10,
		MainPriority:         osal.DefaultTaskAttr().Priority,
		MainStackSize:        2048,
		SysWorkQueue:         true,
		SysWorkQueuePriority: 10,
		SysWorkQueueStack:    1024,
	}
}

// WithFreq sets the tick frequency.
func (c Config) WithFreq(f timing.Freq) Config {
	c.Freq = f
	return c
}

// WithMode sets the time mode.
func (c Config) WithMode(m Mode) Config {
	c.Mode = m
	return c
}

// WithTickSource sets the tick source used in realtime mode. Without one, a
// wall clock at the configured frequency is used.
func (c Config) WithTickSource(s timing.TickSource) Config {
	c.TickSource = s
	return c
}

// WithHeapSize sets the number of bytes of the kernel heap.
func (c Config) WithHeapSize(n int) Config {
	c.HeapSize = n
	return c
}

// WithPriorityLevels sets how many priority levels the scheduler has.
// Priorities beyond the last level are clamped to it.
func (c Config) WithPriorityLevels(n int) Config {
	c.PriorityLevels = n
	return c
}

// WithDefaultTimeSlice sets the slice of round-robin tasks that ask for 0.
func (c Config) WithDefaultTimeSlice(t osal.Tick) Config {
	c.DefaultTimeSlice = t
	return c
}

// WithMainPriority sets the priority of the main task.
func (c Config) WithMainPriority(p uint8) Config {
	c.MainPriority = p
	return c
}

// WithSysWorkQueue enables or disables the system work queue.
func (c Config) WithSysWorkQueue(enabled bool, prio uint8) Config {
	c.SysWorkQueue = enabled
	c.SysWorkQueuePriority = prio

	return c
}

// WithNoPriorityIPC makes the kernel reject priority-ordered mailboxes and
// message queues, like a backend without that discipline.
func (c Config) WithNoPriorityIPC() Config {
	c.NoPriorityIPC = true
	return c
}

// WithLogger attaches a log hook that writes to logger.
func (c Config) WithLogger(l *log.Logger) Config {
	c.Logger = l
	return c
}

// Validate reports whether the configuration describes a kernel. Errors wrap
// ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.Freq == 0:
		return fmt.Errorf("%w: frequency cannot be 0", ErrInvalidConfig)
	case c.Mode != ModeVirtual && c.Mode != ModeRealtime:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, c.Mode)
	case c.HeapSize < 0:
		return fmt.Errorf("%w: negative heap size", ErrInvalidConfig)
	case c.PriorityLevels < 1 || c.PriorityLevels > int(osal.PriorityMax)+1:
		return fmt.Errorf("%w: priority levels must be in [1, %d]",
			ErrInvalidConfig, int(osal.PriorityMax)+1)
	case c.DefaultTimeSlice == 0 || c.DefaultTimeSlice > osal.MaxTimeout:
		return fmt.Errorf("%w: invalid default time slice", ErrInvalidConfig)
	case c.MainPriority > osal.PriorityMax:
		return fmt.Errorf("%w: invalid main priority", ErrInvalidConfig)
	case c.MainStackSize < MinStackSize:
		return fmt.Errorf("%w: main stack below %d bytes",
			ErrInvalidConfig, MinStackSize)
	case c.SysWorkQueue && c.SysWorkQueuePriority > osal.PriorityMax:
		return fmt.Errorf("%w: invalid system work queue priority",
			ErrInvalidConfig)
	case c.SysWorkQueue && c.SysWorkQueueStack < MinStackSize:
		return fmt.Errorf("%w: system work queue stack below %d bytes",
			ErrInvalidConfig, MinStackSize)
	}

	return nil
}
