package kernel

import (
	"fmt"
	"runtime"

	"github.com/sarchlab/cosit/osal"
)

// MsToTick converts milliseconds to ticks, rounding up.
func (k *Kernel) MsToTick(ms uint64) osal.Tick {
	return k.cfg.Freq.MsToTick(ms)
}

// TickToMs converts ticks to milliseconds, rounding down.
func (k *Kernel) TickToMs(t osal.Tick) uint64 {
	return k.cfg.Freq.TickToMs(t)
}

// TickGet returns the number of ticks since boot.
func (k *Kernel) TickGet() osal.Tick {
	return k.Now()
}

// RaiseInterrupt queues fn to run in interrupt context as soon as the kernel
// gets hold of the CPU. It is safe to call from any goroutine.
func (k *Kernel) RaiseInterrupt(fn func()) {
	k.irqLock.Lock()
	k.irqs = append(k.irqs, fn)
	k.irqLock.Unlock()

	k.signal()
}

// ScheduleInterrupt queues fn to run in interrupt context after the given
// number of ticks. It is safe to call from any goroutine.
func (k *Kernel) ScheduleInterrupt(after osal.Tick, fn func()) {
	if after == 0 {
		after = 1
	}

	k.mu.Lock()
	k.timeline.Schedule(k.Now()+after, fn)
	k.mu.Unlock()

	k.signal()
}

// Spin consumes ticks of CPU time as the calling task. The task may be
// preempted while it spins; only ticks during which it holds the CPU count.
func (k *Kernel) Spin(ticks osal.Tick) error {
	k.enter()
	err := k.spin(ticks)
	k.exit()

	return err
}

func (k *Kernel) spin(ticks osal.Tick) error {
	if err := k.checkTask(); err != nil {
		return err
	}

	for ticks > 0 {
		if k.cfg.Mode == ModeVirtual {
			if k.paused.Load() {
				k.sleepUnlocked()
			} else {
				k.tick()
				ticks--
			}
		} else {
			ticks -= min(ticks, k.waitTicks())
		}

		k.service()
		k.preempt()
	}

	return nil
}

func (k *Kernel) irqPending() bool {
	k.irqLock.Lock()
	defer k.irqLock.Unlock()

	return len(k.irqs) > 0
}

// service processes what arrived while the caller did not hold the lock: a
// stop request, ticks of the tick source and raised interrupts.
func (k *Kernel) service() {
	if k.state != kernelRunning || k.dying != nil || k.isrDepth > 0 {
		return
	}

	if k.stopReq.Load() {
		k.halt(nil)
	}

	k.pollTicks()

	for {
		k.irqLock.Lock()
		irqs := k.irqs
		k.irqs = nil
		k.irqLock.Unlock()

		if len(irqs) == 0 {
			return
		}

		k.isrDepth++
		for _, fn := range irqs {
			k.callISR(fn)
		}
		k.isrDepth--
	}
}

func (k *Kernel) pollTicks() {
	if k.source == nil || k.paused.Load() {
		return
	}

	for {
		select {
		case <-k.source.Ticks():
			k.tick()
		default:
			return
		}
	}
}

// waitTicks waits for the tick source or a wakeup and processes the ticks
// that arrived.
func (k *Kernel) waitTicks() osal.Tick {
	k.held = false
	k.mu.Unlock()

	var ticks <-chan uint64
	if !k.paused.Load() {
		ticks = k.source.Ticks()
	}

	var n osal.Tick

	select {
	case <-ticks:
		n = 1
	case <-k.wakeup:
	}

	k.mu.Lock()
	k.held = true

	if n > 0 {
		k.tick()
	}

	return n
}

func (k *Kernel) sleepUnlocked() {
	k.held = false
	k.mu.Unlock()

	<-k.wakeup

	k.mu.Lock()
	k.held = true
}

// callISR runs fn in interrupt context with the kernel lock released, so
// that fn may call the interrupt-safe operations.
func (k *Kernel) callISR(fn func()) {
	k.held = false
	k.mu.Unlock()

	fn()

	k.mu.Lock()
	k.held = true
}

// tick advances the clock by one tick, fires the events that fall due and
// charges the tick to the current task.
func (k *Kernel) tick() {
	now := osal.Tick(k.now.Add(1))
	k.isrDepth++

	for evt := k.timeline.PopDue(now); evt != nil; evt = k.timeline.PopDue(now) {
		switch p := evt.Payload.(type) {
		case *waiter:
			k.expire(p)
		case *timerCB:
			k.fire(p)
		case *workCB:
			k.workDue(p)
		case func():
			k.callISR(p)
		default:
			panic(fmt.Sprintf("unknown timeline payload %T", p))
		}
	}

	k.account()
	k.isrDepth--

	k.invoke(HookPosTick, nil, nil)
}

func (k *Kernel) account() {
	t := k.current
	if t == nil || t.isIdle || t.state != stateRunning {
		return
	}

	t.runTicks++

	if t.realtime() {
		if t.policy != osal.SchedRR {
			return
		}

		if t.sliceLeft > 1 {
			t.sliceLeft--
			return
		}

		t.sliceLeft = t.slice

		if k.runq.samePriorityReady(t.prio) {
			k.rotate = true
		}

		return
	}

	t.vruntime += fairScale / weight(t)

	lead := uint64(k.cfg.DefaultTimeSlice) * (fairScale / weight(t))
	if lo, _, ok := k.runq.fairBounds(); ok && k.runq.rt == 0 &&
		t.vruntime >= lo+lead {
		k.rotate = true
	}
}

// idleMain is the body of the idle task. It serves interrupts, hands the CPU
// to ready tasks and moves time forward when nothing can run.
func (k *Kernel) idleMain(t *tcb) {
	defer k.idleReturned(t)

	if <-t.resume == signalKill {
		runtime.Goexit()
	}

	k.mu.Lock()
	k.held = true

	for {
		k.service()

		if next := k.runq.pop(); next != nil {
			k.switchTo(next)
			continue
		}

		if k.cfg.Mode == ModeRealtime {
			k.waitTicks()
			continue
		}

		if !k.advance() {
			k.halt(ErrStalled)
		}
	}
}

func (k *Kernel) idleReturned(t *tcb) {
	r := recover()

	if t.killed {
		close(t.exited)
		return
	}

	if !k.held {
		k.mu.Lock()
		k.held = true
	}

	k.isrDepth = 0
	k.shutdown(fmt.Errorf("interrupt handler panicked: %v", r))

	close(t.exited)
	k.held = false
	k.mu.Unlock()
}

// advance moves virtual time to the next pending event. It returns false
// when nothing will ever happen again.
func (k *Kernel) advance() bool {
	if k.irqPending() || k.stopReq.Load() {
		return true
	}

	if k.paused.Load() {
		k.sleepUnlocked()
		return true
	}

	evt := k.timeline.Peek()
	if evt == nil {
		return false
	}

	if at := uint64(evt.Time); at > k.now.Load()+1 {
		k.now.Store(at - 1)
	}

	k.tick()

	return true
}
