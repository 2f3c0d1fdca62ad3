package timing

import (
	"sync"
	"time"
)

// A TickSource delivers hardware ticks to a kernel running in realtime mode.
type TickSource interface {
	// Ticks returns the channel that receives one value per tick. The value
	// is the sequence number of the tick.
	Ticks() <-chan uint64

	// Stop stops the source. Ticks already delivered stay in the channel.
	Stop()
}

// WallClock is a TickSource driven by a time.Ticker.
type WallClock struct {
	ticks    chan uint64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWallClock starts a wall clock at the given frequency.
func NewWallClock(freq Freq) *WallClock {
	c := &WallClock{
		ticks: make(chan uint64, 64),
		stop:  make(chan struct{}),
	}

	go c.run(freq.Period())

	return c
}

// Ticks returns the tick channel.
func (c *WallClock) Ticks() <-chan uint64 {
	return c.ticks
}

// Stop stops the clock.
func (c *WallClock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *WallClock) run(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seq uint64

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			seq++
			select {
			case c.ticks <- seq:
			case <-c.stop:
				return
			}
		}
	}
}

// ManualClock is a TickSource whose ticks are generated by calling Step. It
// drives realtime kernels in tests and in lock-step with external simulators.
type ManualClock struct {
	lock  sync.Mutex
	ticks chan uint64
	seq   uint64
}

// NewManualClock creates a manual clock that can buffer up to capacity
// undelivered ticks.
func NewManualClock(capacity int) *ManualClock {
	return &ManualClock{ticks: make(chan uint64, capacity)}
}

// Ticks returns the tick channel.
func (c *ManualClock) Ticks() <-chan uint64 {
	return c.ticks
}

// Step generates n ticks. It blocks while the buffer is full.
func (c *ManualClock) Step(n int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i := 0; i < n; i++ {
		c.seq++
		c.ticks <- c.seq
	}
}

// Stop does nothing. A manual clock stops when Step is no longer called.
func (c *ManualClock) Stop() {}
