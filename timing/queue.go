package timing

import (
	"container/heap"

	"github.com/sarchlab/cosit/osal"
)

// An Event is something scheduled to happen at a tick. The payload tells the
// owner of the queue what to do when the event is due.
type Event struct {
	Time    osal.Tick
	Payload any

	seq uint64
	pos int
}

// Scheduled reports whether the event is waiting in a queue.
func (e *Event) Scheduled() bool {
	return e != nil && e.pos > 0
}

// Queue is a queue of events ordered by time. Events due at the same tick
// leave the queue in the order they were scheduled. Queue is not safe for
// concurrent use.
type Queue struct {
	events  eventHeap
	nextSeq uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	heap.Init(&q.events)

	return q
}

// Schedule creates an event at the given tick and queues it.
func (q *Queue) Schedule(at osal.Tick, payload any) *Event {
	evt := &Event{Time: at, Payload: payload}
	q.Push(evt)

	return evt
}

// Push queues an event that is not already queued.
func (q *Queue) Push(evt *Event) {
	if evt.Scheduled() {
		panic("event already scheduled")
	}

	evt.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.events, evt)
}

// Cancel removes an event. It returns false if the event was not queued.
func (q *Queue) Cancel(evt *Event) bool {
	if !evt.Scheduled() {
		return false
	}

	heap.Remove(&q.events, evt.pos-1)

	return true
}

// Peek returns the earliest event without removing it, or nil.
func (q *Queue) Peek() *Event {
	if len(q.events) == 0 {
		return nil
	}

	return q.events[0]
}

// Pop removes and returns the earliest event, or nil.
func (q *Queue) Pop() *Event {
	if len(q.events) == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*Event)
}

// PopDue removes and returns the earliest event due at or before now, or nil.
func (q *Queue) PopDue(now osal.Tick) *Event {
	evt := q.Peek()
	if evt == nil || evt.Time > now {
		return nil
	}

	return q.Pop()
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.events)
}

type eventHeap []*Event

func (h eventHeap) Len() int {
	return len(h)
}

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i + 1
	h[j].pos = j + 1
}

func (h *eventHeap) Push(x any) {
	evt := x.(*Event)
	*h = append(*h, evt)
	evt.pos = len(*h)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	evt.pos = 0
	*h = old[0 : n-1]

	return evt
}
