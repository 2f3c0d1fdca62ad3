package kernel

import (
	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

type timerCB struct {
	objHeader

	handle  osal.Timer
	fn      osal.TimerFunc
	arg     any
	initial osal.Tick
	period  osal.Tick
	active  bool
	fired   bool
	armedAt osal.Tick
	evt     *timing.Event
	fires   uint64
}

func (t *timerCB) first() osal.Tick {
	if t.initial == 0 {
		return t.period
	}

	return t.initial
}

// TimerCreate creates a software timer.
func (k *Kernel) TimerCreate(
	name string,
	fn osal.TimerFunc,
	arg any,
	initial, period osal.Tick,
	opts osal.TimerOption,
) (osal.Timer, error) {
	k.enter()
	t, err := k.timerCreate(nil, name, fn, arg, initial, period, opts)
	k.exit()

	return t, err
}

// TimerInit creates a software timer in caller storage.
func (k *Kernel) TimerInit(
	b osal.Block,
	name string,
	fn osal.TimerFunc,
	arg any,
	initial, period osal.Tick,
	opts osal.TimerOption,
) (osal.Timer, error) {
	k.enter()

	blk, ok := blockOf[TimerBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	t, err := k.timerCreate(blk, name, fn, arg, initial, period, opts)
	k.exit()

	return t, err
}

func validTimerTimes(initial, period osal.Tick) bool {
	return (initial != 0 || period != 0) &&
		initial <= osal.MaxTimeout && period <= osal.MaxTimeout
}

func (k *Kernel) timerCreate(
	blk *TimerBlock,
	name string,
	fn osal.TimerFunc,
	arg any,
	initial, period osal.Tick,
	opts osal.TimerOption,
) (osal.Timer, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	activate := opts&osal.TimerActivate != 0
	if fn == nil || !validTimerTimes(initial, period) ||
		activate && opts&osal.TimerDeactivate != 0 {
		return 0, osal.ErrParam
	}

	var t *timerCB

	if blk != nil {
		osal.Claim(blk)
		blk.cb = timerCB{}
		t = &blk.cb
		t.block = blk
	} else {
		mem, err := k.charge(TimerBlockSize)
		if err != nil {
			return 0, err
		}

		t = &timerCB{}
		t.mem = mem
	}

	t.name = name
	t.fn = fn
	t.arg = arg
	t.initial = initial
	t.period = period
	t.handle = osal.Timer(k.timers.add(t))

	if activate {
		k.arm(t)
	}

	return t.handle, nil
}

func (k *Kernel) lookupTimer(h osal.Timer) (*timerCB, error) {
	if err := k.check(false); err != nil {
		return nil, err
	}

	t, ok := k.timers.get(osal.Handle(h))
	if !ok {
		return nil, osal.ErrParam
	}

	return t, nil
}

func (k *Kernel) arm(t *timerCB) {
	k.disarm(t)

	t.active = true
	t.fired = false
	t.armedAt = k.Now()
	t.evt = k.timeline.Schedule(t.armedAt+t.first(), t)
}

func (k *Kernel) disarm(t *timerCB) {
	if t.evt != nil {
		k.timeline.Cancel(t.evt)
		t.evt = nil
	}

	t.active = false
}

// TimerDelete stops and frees a created timer.
func (k *Kernel) TimerDelete(h osal.Timer) error {
	k.enter()
	err := k.timerDelete(h, false)
	k.exit()

	return err
}

// TimerDeinit stops an initialised timer and releases its block.
func (k *Kernel) TimerDeinit(h osal.Timer) error {
	k.enter()
	err := k.timerDelete(h, true)
	k.exit()

	return err
}

func (k *Kernel) timerDelete(h osal.Timer, static bool) error {
	t, err := k.lookupTimer(h)
	if err != nil {
		return err
	}

	if t.static() != static {
		return osal.ErrParam
	}

	k.disarm(t)
	k.timers.remove(osal.Handle(h))
	k.discharge(&t.objHeader)

	return nil
}

// TimerStart arms the timer, restarting it if it is active.
func (k *Kernel) TimerStart(h osal.Timer) error {
	k.enter()

	t, err := k.lookupTimer(h)
	if err == nil {
		k.arm(t)
	}

	k.exit()

	return err
}

// TimerStop disarms an active timer.
func (k *Kernel) TimerStop(h osal.Timer) error {
	k.enter()
	err := k.timerStop(h)
	k.exit()

	return err
}

func (k *Kernel) timerStop(h osal.Timer) error {
	t, err := k.lookupTimer(h)
	if err != nil {
		return err
	}

	if !t.active {
		return osal.ErrTimerStopped
	}

	k.disarm(t)

	return nil
}

// TimerChange sets new times. Before the first expiry of an active timer the
// pending deadline follows the new initial delay. After it, only later
// periods are affected.
func (k *Kernel) TimerChange(h osal.Timer, initial, period osal.Tick) error {
	k.enter()
	err := k.timerChange(h, initial, period)
	k.exit()

	return err
}

func (k *Kernel) timerChange(h osal.Timer, initial, period osal.Tick) error {
	t, err := k.lookupTimer(h)
	if err != nil {
		return err
	}

	if !validTimerTimes(initial, period) {
		return osal.ErrParam
	}

	t.initial = initial
	t.period = period

	if !t.active || t.fired {
		return nil
	}

	at := t.armedAt + t.first()
	if now := k.Now(); at <= now {
		at = now + 1
	}

	k.timeline.Cancel(t.evt)
	t.evt = k.timeline.Schedule(at, t)

	return nil
}

// TimerTime returns the ticks until the next expiry, 0 if the timer is
// inactive, and the period.
func (k *Kernel) TimerTime(h osal.Timer) (osal.Tick, osal.Tick, error) {
	k.enter()
	remaining, period, err := k.timerTime(h)
	k.exit()

	return remaining, period, err
}

func (k *Kernel) timerTime(h osal.Timer) (osal.Tick, osal.Tick, error) {
	t, err := k.lookupTimer(h)
	if err != nil {
		return 0, 0, err
	}

	var remaining osal.Tick
	if t.active && t.evt != nil {
		remaining = t.evt.Time - k.Now()
	}

	return remaining, t.period, nil
}

// fire runs at the expiry of t, in interrupt context.
func (k *Kernel) fire(t *timerCB) {
	t.evt = nil
	t.fired = true
	t.fires++

	if t.period > 0 {
		t.evt = k.timeline.Schedule(k.Now()+t.period, t)
	} else {
		t.active = false
	}

	k.invoke(HookPosTimerFire, t.name, nil)

	fn, arg := t.fn, t.arg
	k.callISR(func() { fn(arg) })
}
