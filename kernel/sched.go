package kernel

import (
	"fmt"
	"runtime"

	"github.com/sarchlab/cosit/osal"
)

const (
	fairScale       = 1 << 16
	maxInheritDepth = 16
)

// outranks reports whether a should take the CPU from b.
func outranks(a, b *tcb) bool {
	switch {
	case b.isIdle:
		return !a.isIdle
	case a.isIdle:
		return false
	case a.realtime() != b.realtime():
		return a.realtime()
	case a.realtime():
		return a.prio < b.prio
	default:
		return false
	}
}

// peers reports whether a and b share the CPU by rotation.
func peers(a, b *tcb) bool {
	if a.realtime() != b.realtime() {
		return false
	}

	return !a.realtime() || a.prio == b.prio
}

func weight(t *tcb) uint64 {
	return uint64(osal.PriorityMax) + 1 - uint64(t.prio)
}

// preempt gives the CPU to a more urgent task, or to the next peer when the
// current task's turn is over.
func (k *Kernel) preempt() {
	if k.state != kernelRunning || k.isrDepth > 0 || k.dying != nil {
		return
	}

	cur := k.current
	if cur == nil || cur.isIdle {
		return
	}

	if cur.state != stateRunning {
		k.schedule()
		return
	}

	next := k.runq.peek()
	if next == nil {
		k.rotate = false
		return
	}

	switch {
	case outranks(next, cur):
		cur.state = stateReady
		k.runq.push(cur, true)
	case k.rotate && peers(next, cur):
		cur.state = stateReady
		k.runq.push(cur, false)
	default:
		return
	}

	k.switchTo(k.runq.pop())
}

// schedule gives the CPU away from a task that can no longer run.
func (k *Kernel) schedule() {
	next := k.runq.pop()
	if next == nil {
		next = k.idle
	}

	k.switchTo(next)
}

// switchTo hands the CPU to next and parks the calling goroutine until its
// task is scheduled again.
func (k *Kernel) switchTo(next *tcb) {
	cur := k.current
	next.state = stateRunning

	if next == cur {
		return
	}

	k.current = next
	k.rotate = false
	next.switches++
	k.invoke(HookPosTaskSwitch, next.ref(), cur.ref())

	k.held = false
	k.mu.Unlock()

	next.resume <- signalRun

	k.park(cur)
}

func (k *Kernel) park(t *tcb) {
	if <-t.resume == signalKill {
		runtime.Goexit()
	}

	k.mu.Lock()
	k.held = true
}

// ready puts t at the tail of the run queue. A fair task that slept is
// caught up to the laggard so that it cannot monopolise the CPU.
func (k *Kernel) ready(t *tcb) {
	t.state = stateReady

	if !t.realtime() {
		if lo, ok := k.minVruntime(); ok && t.vruntime < lo {
			t.vruntime = lo
		}
	}

	k.runq.push(t, false)
}

func (k *Kernel) minVruntime() (uint64, bool) {
	lo, _, ok := k.runq.fairBounds()

	if cur := k.current; cur != nil && !cur.isIdle && !cur.realtime() &&
		cur.state == stateRunning {
		if !ok || cur.vruntime < lo {
			lo, ok = cur.vruntime, true
		}
	}

	return lo, ok
}

// block puts the current task to sleep on q until it is woken or the
// timeout expires, and returns the error the wait ended with.
func (k *Kernel) block(w *waiter, q *waitQueue, timeout osal.Tick, on string) error {
	t := k.current
	w.t = t
	w.on = on

	if q != nil {
		q.insert(w)
	}

	if timeout != osal.WaitForever {
		w.deadline = k.Now() + timeout
		w.timeout = k.timeline.Schedule(w.deadline, w)
	}

	t.wait = w
	t.state = stateBlocked
	k.invoke(HookPosBlock, t.ref(), on)

	if w.mutex != nil {
		k.updatePriority(w.mutex.owner)
	}

	k.schedule()

	return w.err
}

// wake ends the wait of w with err.
func (k *Kernel) wake(w *waiter, err error) {
	if w.q != nil {
		w.q.remove(w)
	}

	if w.timeout != nil {
		k.timeline.Cancel(w.timeout)
		w.timeout = nil
	}

	w.err = err
	t := w.t
	t.wait = nil
	k.invoke(HookPosWake, t.ref(), osal.StatusOf(err))

	if t.suspendAfterWait {
		t.suspendAfterWait = false
		t.state = stateSuspended

		return
	}

	k.ready(t)
}

// wakeAll ends every wait on q with err.
func (k *Kernel) wakeAll(q *waitQueue, err error) {
	for w := q.front(); w != nil; w = q.front() {
		k.wake(w, err)
	}
}

func (k *Kernel) expire(w *waiter) {
	w.timeout = nil

	if w.sleep {
		k.wake(w, nil)
		return
	}

	k.wake(w, osal.ErrTimeout)

	if w.mutex != nil {
		k.updatePriority(w.mutex.owner)
	}
}

// effective computes the priority of t from its base priority and the
// waiters of the mutexes it owns.
func (k *Kernel) effective(t *tcb) (prio uint8, boost bool) {
	prio = t.basePrio

	for _, m := range t.owned {
		w := m.waiters.front()
		if w == nil {
			continue
		}

		if w.t.prio < prio {
			prio = w.t.prio
		}

		if w.t.realtime() && t.policy == osal.SchedFair {
			boost = true
		}
	}

	return prio, boost
}

// updatePriority recomputes the priority of t and propagates the change
// along the chain of mutex owners t waits for.
func (k *Kernel) updatePriority(t *tcb) {
	for depth := 0; t != nil && depth < maxInheritDepth; depth++ {
		prio, boost := k.effective(t)
		if prio == t.prio && boost == t.rtBoost {
			return
		}

		queued := t.state == stateReady
		if queued {
			k.runq.remove(t)
		}

		t.prio, t.rtBoost = prio, boost

		if queued {
			k.runq.push(t, false)
		}

		w := t.wait
		if w == nil || w.q == nil {
			return
		}

		w.q.reposition(w)

		if w.mutex == nil {
			return
		}

		t = w.mutex.owner
	}
}

func (k *Kernel) clamp(prio uint8) uint8 {
	if int(prio) >= k.cfg.PriorityLevels {
		return uint8(k.cfg.PriorityLevels - 1)
	}

	return prio
}

// retire removes t from every kernel structure. Mutexes it owns pass to
// their next waiter.
func (k *Kernel) retire(t *tcb) {
	if w := t.wait; w != nil {
		if w.q != nil {
			w.q.remove(w)
		}

		if w.timeout != nil {
			k.timeline.Cancel(w.timeout)
			w.timeout = nil
		}

		t.wait = nil

		if w.mutex != nil {
			k.updatePriority(w.mutex.owner)
		}
	}

	k.runq.remove(t)
	t.state = stateDormant

	for len(t.owned) > 0 {
		k.handOff(t.owned[0])
	}

	k.tasks.remove(osal.Handle(t.handle))
	k.invoke(HookPosTaskDelete, t.ref(), t.exitCode)
	k.discharge(&t.objHeader)
}

func (k *Kernel) taskMain(t *tcb) {
	if <-t.resume == signalKill {
		close(t.exited)
		return
	}

	defer k.taskReturned(t)

	t.entry(t.arg)
}

// taskReturned runs when the goroutine of t ends, whether the entry
// returned, the task exited, was killed, or panicked.
func (k *Kernel) taskReturned(t *tcb) {
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

	switch {
	case r != nil:
		k.shutdown(fmt.Errorf("task %s panicked: %v", t.name, r))
	case t == k.main:
		k.retire(t)
		k.shutdown(nil)
	default:
		k.retire(t)
		k.dispatchFrom(t)

		return
	}

	close(t.exited)
	k.held = false
	k.mu.Unlock()
}

// dispatchFrom hands the CPU from a task whose goroutine is about to end.
func (k *Kernel) dispatchFrom(t *tcb) {
	next := k.runq.pop()
	if next == nil {
		next = k.idle
	}

	k.current = next
	k.rotate = false
	next.state = stateRunning
	next.switches++
	k.invoke(HookPosTaskSwitch, next.ref(), t.ref())

	close(t.exited)
	k.held = false
	k.mu.Unlock()

	next.resume <- signalRun
}

// leave ends the current task's goroutine. Deferred functions of the task
// run before the task is retired.
func (k *Kernel) leave(code int32) {
	k.current.exitCode = code
	k.held = false
	k.mu.Unlock()
	runtime.Goexit()
}

// kill deletes a task that does not hold the CPU.
func (k *Kernel) kill(t *tcb) {
	k.retire(t)
	k.terminate(t)
}
