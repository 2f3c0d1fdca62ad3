package osal

// Tick is the base time unit of a kernel.
type Tick uint64

const (
	// NoWait makes a blocking operation poll once and fail with ErrTimeout if
	// it cannot complete.
	NoWait Tick = 0

	// WaitForever makes a blocking operation wait without a deadline.
	WaitForever Tick = ^Tick(0)

	// MaxTimeout is the longest finite timeout a blocking operation accepts.
	MaxTimeout Tick = 1<<48 - 1
)

// ValidTimeout reports whether t is a timeout a blocking operation accepts.
func ValidTimeout(t Tick) bool {
	return t == WaitForever || t <= MaxTimeout
}

// Clock converts between milliseconds and ticks and reports the tick count.
// All methods are safe from interrupt context.
type Clock interface {
	MsToTick(ms uint64) Tick
	TickToMs(t Tick) uint64
	TickGet() Tick
}
