package osal

// TimerFunc is called in interrupt context when a timer expires.
type TimerFunc func(arg any)

// TimerOption modifies timer creation.
type TimerOption uint32

// Timer options.
const (
	TimerActivate   TimerOption = 1 << 0
	TimerDeactivate TimerOption = 1 << 1
)

// Timers manages software timers. A timer with period 0 is one-shot.
type Timers interface {
	TimerCreate(
		name string,
		fn TimerFunc,
		arg any,
		initial, period Tick,
		opts TimerOption,
	) (Timer, error)
	TimerInit(
		b Block,
		name string,
		fn TimerFunc,
		arg any,
		initial, period Tick,
		opts TimerOption,
	) (Timer, error)
	TimerDelete(t Timer) error
	TimerDeinit(t Timer) error
	TimerStart(t Timer) error
	TimerStop(t Timer) error
	TimerChange(t Timer, initial, period Tick) error

	// TimerTime returns the ticks until the next expiry (0 if inactive) and
	// the period.
	TimerTime(t Timer) (remaining, period Tick, err error)
}
