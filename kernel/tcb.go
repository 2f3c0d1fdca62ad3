package kernel

import (
	"github.com/gammazero/deque"

	"github.com/sarchlab/cosit/osal"
)

type taskState uint8

const (
	stateReady taskState = iota
	stateRunning
	stateBlocked
	stateSuspended
	stateDormant
)

type signal uint8

const (
	signalRun signal = iota
	signalKill
)

const (
	notQueued = -1
	fairLevel = int(osal.PriorityMax) + 1
)

// tcb is the control block of a task. Every task runs on its own goroutine,
// but only the task that holds the CPU is ever released from its resume
// channel.
type tcb struct {
	objHeader

	handle   osal.Task
	entry    osal.TaskEntry
	arg      any
	basePrio uint8
	prio     uint8
	rtBoost  bool
	policy   osal.SchedPolicy
	cpu      uint8

	slice     osal.Tick
	sliceLeft osal.Tick
	vruntime  uint64
	rqLevel   int

	state            taskState
	suspendAfterWait bool
	wait             *waiter
	owned            []*mutexCB
	stack            []byte
	worker           *workQueueCB
	isIdle           bool

	exitCode int32
	killed   bool
	resume   chan signal
	exited   chan struct{}

	switches uint64
	runTicks uint64
}

func (t *tcb) realtime() bool {
	return t.policy != osal.SchedFair || t.rtBoost
}

func (t *tcb) ref() TaskRef {
	return TaskRef{Handle: t.handle, Name: t.name}
}

func (t *tcb) publicState() osal.TaskState {
	switch t.state {
	case stateReady:
		return osal.TaskReady
	case stateRunning:
		return osal.TaskRunning
	case stateBlocked:
		return osal.TaskBlocked
	case stateSuspended:
		return osal.TaskSuspended
	default:
		return osal.TaskDormant
	}
}

// TaskRef identifies a task in hook contexts and snapshots.
type TaskRef struct {
	Handle osal.Task
	Name   string
}

func (r TaskRef) String() string {
	return r.Name
}

// runQueue holds the ready tasks. Real-time tasks are kept in one FIFO per
// priority level. Fair tasks are kept in a list and the one with the least
// virtual runtime runs first.
type runQueue struct {
	levels [osal.PriorityMax + 1]deque.Deque[*tcb]
	rt     int
	fair   []*tcb
}

func (q *runQueue) push(t *tcb, front bool) {
	if !t.realtime() {
		t.rqLevel = fairLevel
		q.fair = append(q.fair, t)

		return
	}

	t.rqLevel = int(t.prio)
	q.rt++

	if front {
		q.levels[t.prio].PushFront(t)
	} else {
		q.levels[t.prio].PushBack(t)
	}
}

func (q *runQueue) remove(t *tcb) bool {
	switch {
	case t.rqLevel == notQueued:
		return false
	case t.rqLevel == fairLevel:
		for i, f := range q.fair {
			if f == t {
				q.fair = append(q.fair[:i], q.fair[i+1:]...)
				break
			}
		}
	default:
		level := &q.levels[t.rqLevel]
		if i := level.Index(func(x *tcb) bool { return x == t }); i >= 0 {
			level.Remove(i)
			q.rt--
		}
	}

	t.rqLevel = notQueued

	return true
}

func (q *runQueue) peek() *tcb {
	if q.rt > 0 {
		for p := range q.levels {
			if q.levels[p].Len() > 0 {
				return q.levels[p].Front()
			}
		}
	}

	var best *tcb
	for _, t := range q.fair {
		if best == nil || t.vruntime < best.vruntime {
			best = t
		}
	}

	return best
}

func (q *runQueue) pop() *tcb {
	t := q.peek()
	if t != nil {
		q.remove(t)
	}

	return t
}

// fairBounds returns the smallest and largest virtual runtime of the queued
// fair tasks.
func (q *runQueue) fairBounds() (lo, hi uint64, ok bool) {
	for i, t := range q.fair {
		if i == 0 || t.vruntime < lo {
			lo = t.vruntime
		}

		if t.vruntime > hi {
			hi = t.vruntime
		}
	}

	return lo, hi, len(q.fair) > 0
}

// samePriorityReady reports whether a real-time task of priority prio is
// queued.
func (q *runQueue) samePriorityReady(prio uint8) bool {
	return q.levels[prio].Len() > 0
}
