// Package timing provides the tick frequency, the deadline queue that drives
// kernel time, and the sources that generate ticks.
package timing

import (
	"log"
	"math/bits"
	"time"

	"github.com/sarchlab/cosit/osal"
)

// Freq is a tick frequency in ticks per second.
type Freq uint64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
)

// Period returns the time between two consecutive ticks.
func (f Freq) Period() time.Duration {
	if f == 0 {
		log.Panic("frequency cannot be 0")
	}

	return time.Second / time.Duration(f)
}

// MsToTick converts milliseconds to ticks, rounding up so that a timeout is
// never shorter than requested. The result saturates at osal.WaitForever.
func (f Freq) MsToTick(ms uint64) osal.Tick {
	if f == 0 {
		log.Panic("frequency cannot be 0")
	}

	if ms == uint64(osal.WaitForever) {
		return osal.WaitForever
	}

	hi, lo := bits.Mul64(ms, uint64(f))
	if hi >= 1000 {
		return osal.WaitForever
	}

	q, r := bits.Div64(hi, lo, 1000)
	if q == uint64(osal.WaitForever) {
		return osal.WaitForever
	}

	if r != 0 {
		q++
	}

	return osal.Tick(q)
}

// TickToMs converts ticks to milliseconds, rounding down.
func (f Freq) TickToMs(t osal.Tick) uint64 {
	if f == 0 {
		log.Panic("frequency cannot be 0")
	}

	if t == osal.WaitForever {
		return uint64(osal.WaitForever)
	}

	hi, lo := bits.Mul64(uint64(t), 1000)
	if hi >= uint64(f) {
		return uint64(osal.WaitForever)
	}

	q, _ := bits.Div64(hi, lo, uint64(f))

	return q
}

// DurationToTick converts a wall-clock duration to ticks, rounding up.
func (f Freq) DurationToTick(d time.Duration) osal.Tick {
	if d <= 0 {
		return 0
	}

	period := f.Period()

	return osal.Tick((d + period - 1) / period)
}
