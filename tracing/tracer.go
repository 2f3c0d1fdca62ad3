// Package tracing records kernel activity into a datarecording database.
package tracing

import (
	"fmt"

	"github.com/sarchlab/cosit/datarecording"
	"github.com/sarchlab/cosit/hooking"
	"github.com/sarchlab/cosit/idgen"
	"github.com/sarchlab/cosit/kernel"
)

// Table names written by the Tracer.
const (
	EventTable   = "kernel_events"
	SegmentTable = "task_segments"
)

// Event is one kernel event.
type Event struct {
	ID     string
	Time   uint64
	Kind   string
	Task   string
	Detail string
}

// Segment is a stretch of ticks during which a task held the CPU.
type Segment struct {
	Task  string
	Start uint64
	End   uint64
}

// Tracer is a kernel hook that writes every event it sees into the
// EventTable and the time each task spends on the CPU into the SegmentTable.
// Tick events are not recorded.
type Tracer struct {
	recorder datarecording.DataRecorder
	ids      idgen.Generator

	running string
	since   uint64
}

// NewTracer creates the tables of a trace in recorder. IDs of the events come
// from ids.
func NewTracer(
	recorder datarecording.DataRecorder,
	ids idgen.Generator,
) *Tracer {
	recorder.CreateTable(EventTable, Event{})
	recorder.CreateTable(SegmentTable, Segment{})

	return &Tracer{
		recorder: recorder,
		ids:      ids,
	}
}

// Attach registers a new tracer on k.
func Attach(
	k *kernel.Kernel,
	recorder datarecording.DataRecorder,
	ids idgen.Generator,
) *Tracer {
	t := NewTracer(recorder, ids)
	k.AcceptHook(t)

	return t
}

// Func records the event of ctx.
func (t *Tracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos == kernel.HookPosTick {
		return
	}

	if ctx.Pos == kernel.HookPosTaskSwitch {
		t.switchTo(ctx.Now, nameOf(ctx.Item))
	}

	e := Event{
		ID:   t.ids.Generate(),
		Time: ctx.Now,
		Kind: ctx.Pos.Name,
		Task: nameOf(ctx.Item),
	}

	if ctx.Detail != nil {
		e.Detail = fmt.Sprint(ctx.Detail)
	}

	t.recorder.InsertData(EventTable, e)
}

func (t *Tracer) switchTo(now uint64, next string) {
	t.closeSegment(now)

	t.running = next
	t.since = now
}

func (t *Tracer) closeSegment(now uint64) {
	if t.running == "" || now <= t.since {
		return
	}

	t.recorder.InsertData(SegmentTable, Segment{
		Task:  t.running,
		Start: t.since,
		End:   now,
	})
}

// Finish closes the segment of the task that ran last and flushes the
// recorder. It is called after the kernel has stopped.
func (t *Tracer) Finish(now uint64) {
	t.closeSegment(now)
	t.running = ""

	t.recorder.Flush()
}

func nameOf(item any) string {
	switch v := item.(type) {
	case nil:
		return ""
	case kernel.TaskRef:
		return v.Name
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
