package kernel

import (
	"github.com/gammazero/deque"

	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

// waiter records one blocked task and what it waits for. The fields after
// err carry the payload of the primitive the task is blocked on.
type waiter struct {
	t       *tcb
	q       *waitQueue
	on      string
	timeout *timing.Event
	err     error

	sleep    bool
	deadline osal.Tick
	left     osal.Tick
	mutex    *mutexCB

	mask  osal.EventFlag
	opts  osal.EventOption
	match osal.EventFlag

	value uint32
	msg   []byte
	buf   []byte
	n     int
}

// waitQueue orders blocked tasks by priority, FIFO among equals, or purely by
// arrival.
type waitQueue struct {
	order   osal.IPCOrder
	waiters deque.Deque[*waiter]
}

func newWaitQueue(order osal.IPCOrder) waitQueue {
	return waitQueue{order: order}
}

func (q *waitQueue) insert(w *waiter) {
	w.q = q

	if q.order == osal.IPCFIFO {
		q.waiters.PushBack(w)
		return
	}

	at := q.waiters.RIndex(func(x *waiter) bool {
		return x.t.prio <= w.t.prio
	})
	q.waiters.Insert(at+1, w)
}

func (q *waitQueue) remove(w *waiter) {
	if i := q.waiters.Index(func(x *waiter) bool { return x == w }); i >= 0 {
		q.waiters.Remove(i)
	}

	w.q = nil
}

// reposition moves a waiter whose task changed priority.
func (q *waitQueue) reposition(w *waiter) {
	if q.order == osal.IPCFIFO {
		return
	}

	q.remove(w)
	q.insert(w)
}

func (q *waitQueue) front() *waiter {
	if q.waiters.Len() == 0 {
		return nil
	}

	return q.waiters.Front()
}

func (q *waitQueue) at(i int) *waiter {
	return q.waiters.At(i)
}

func (q *waitQueue) len() int {
	return q.waiters.Len()
}

func (q *waitQueue) names() []string {
	names := make([]string, 0, q.waiters.Len())
	for i := 0; i < q.waiters.Len(); i++ {
		names = append(names, q.waiters.At(i).t.name)
	}

	return names
}
