package kernel

import (
	"unsafe"

	"github.com/gammazero/deque"

	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

type workState uint8

const (
	workIdle workState = iota
	workDelayed
	workQueued
)

func (s workState) String() string {
	switch s {
	case workDelayed:
		return "delayed"
	case workQueued:
		return "queued"
	default:
		return "idle"
	}
}

type workCB struct {
	objHeader

	handle osal.Work
	fn     osal.WorkFunc
	arg    any
	state  workState
	wq     *workQueueCB
	evt    *timing.Event
	runs   uint64
}

type workQueueCB struct {
	objHeader

	handle  osal.WorkQueue
	worker  *tcb
	items   deque.Deque[*workCB]
	running *workCB
	idle    waitQueue
	done    uint64
}

const workQueueCBSize = unsafe.Sizeof(workQueueCB{})

// WorkCreate creates a work item.
func (k *Kernel) WorkCreate(fn osal.WorkFunc, arg any) (osal.Work, error) {
	k.enter()
	w, err := k.workCreate(nil, fn, arg)
	k.exit()

	return w, err
}

// WorkInit creates a work item in caller storage. WorkDelete releases the
// block.
func (k *Kernel) WorkInit(b osal.Block, fn osal.WorkFunc, arg any) (osal.Work, error) {
	k.enter()

	blk, ok := blockOf[WorkBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	w, err := k.workCreate(blk, fn, arg)
	k.exit()

	return w, err
}

func (k *Kernel) workCreate(blk *WorkBlock, fn osal.WorkFunc, arg any) (osal.Work, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	if fn == nil {
		return 0, osal.ErrParam
	}

	var w *workCB

	if blk != nil {
		osal.Claim(blk)
		blk.cb = workCB{}
		w = &blk.cb
		w.block = blk
	} else {
		mem, err := k.charge(WorkBlockSize)
		if err != nil {
			return 0, err
		}

		w = &workCB{}
		w.mem = mem
	}

	w.fn = fn
	w.arg = arg
	w.handle = osal.Work(k.works.add(w))
	w.name = osal.Handle(w.handle).String()

	return w.handle, nil
}

// WorkDelete cancels pending work and frees the item. An item may delete
// itself while it runs.
func (k *Kernel) WorkDelete(h osal.Work) error {
	k.enter()
	err := k.workDelete(h)
	k.exit()

	return err
}

func (k *Kernel) workDelete(h osal.Work) error {
	if err := k.check(false); err != nil {
		return err
	}

	w, ok := k.works.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	k.unqueueWork(w)
	k.works.remove(osal.Handle(h))
	k.discharge(&w.objHeader)

	return nil
}

// WorkQueueCreate starts a work queue served by a dedicated worker task.
func (k *Kernel) WorkQueueCreate(
	name string,
	stackSize int,
	prio uint8,
) (osal.WorkQueue, error) {
	k.enter()

	var h osal.WorkQueue

	err := k.check(false)
	if err == nil {
		var wq *workQueueCB

		wq, err = k.newWorkQueue(name, stackSize, prio)
		if err == nil {
			h = wq.handle
		}
	}

	k.exit()

	return h, err
}

func (k *Kernel) newWorkQueue(name string, stackSize int, prio uint8) (*workQueueCB, error) {
	if prio > osal.PriorityMax || stackSize < MinStackSize {
		return nil, osal.ErrParam
	}

	mem, err := k.charge(workQueueCBSize)
	if err != nil {
		return nil, err
	}

	wq := &workQueueCB{}
	wq.name = name
	wq.mem = mem
	wq.idle = newWaitQueue(osal.IPCFIFO)

	attr := osal.TaskAttr{
		Name:      name,
		StackSize: stackSize,
		Priority:  prio,
		Policy:    osal.SchedFIFO,
	}

	worker, err := k.spawn(k.workerMain, wq, &attr, nil, nil)
	if err != nil {
		k.discharge(&wq.objHeader)
		return nil, err
	}

	worker.worker = wq
	wq.worker = worker
	wq.handle = osal.WorkQueue(k.workqs.add(wq))

	return wq, nil
}

// WorkQueueDestroy cancels the pending work of wq and stops its worker. A
// worker cannot destroy its own queue.
func (k *Kernel) WorkQueueDestroy(h osal.WorkQueue) error {
	k.enter()
	err := k.workQueueDestroy(h)
	k.exit()

	return err
}

func (k *Kernel) workQueueDestroy(h osal.WorkQueue) error {
	if err := k.check(false); err != nil {
		return err
	}

	wq, ok := k.workqs.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	if wq == k.sysWQ || (wq.worker != nil && wq.worker == k.current) {
		return osal.ErrPerm
	}

	k.works.each(func(_ osal.Handle, w *workCB) {
		if w.wq == wq {
			k.unqueueWork(w)
		}
	})

	k.workqs.remove(osal.Handle(h))
	if wq.worker != nil {
		k.kill(wq.worker)
	}
	k.discharge(&wq.objHeader)

	return nil
}

// WorkSubmit queues w on wq after delay ticks. Pending work on the same queue
// is rescheduled.
func (k *Kernel) WorkSubmit(q osal.WorkQueue, h osal.Work, delay osal.Tick) error {
	k.enter()
	err := k.workSubmit(q, h, delay)
	k.exit()

	return err
}

// WorkDo queues w on the system work queue after delay ticks.
func (k *Kernel) WorkDo(h osal.Work, delay osal.Tick) error {
	k.enter()

	var err error = osal.ErrPerm
	if k.sysWQ != nil {
		err = k.workSubmit(k.sysWQ.handle, h, delay)
	}

	k.exit()

	return err
}

func (k *Kernel) workSubmit(q osal.WorkQueue, h osal.Work, delay osal.Tick) error {
	if err := k.check(true); err != nil {
		return err
	}

	wq, ok := k.workqs.get(osal.Handle(q))
	if !ok || delay > osal.MaxTimeout {
		return osal.ErrParam
	}

	if wq.worker == nil {
		return osal.ErrDestroyed
	}

	w, ok := k.works.get(osal.Handle(h))
	if !ok || w.state != workIdle && w.wq != wq {
		return osal.ErrParam
	}

	k.unqueueWork(w)
	w.wq = wq

	if delay == 0 {
		k.enqueueWork(w)
		return nil
	}

	w.state = workDelayed
	w.evt = k.timeline.Schedule(k.Now()+delay, w)

	return nil
}

// WorkCancel removes pending work from wq.
func (k *Kernel) WorkCancel(q osal.WorkQueue, h osal.Work) error {
	k.enter()
	err := k.workCancel(q, h)
	k.exit()

	return err
}

func (k *Kernel) workCancel(q osal.WorkQueue, h osal.Work) error {
	if err := k.check(true); err != nil {
		return err
	}

	wq, ok := k.workqs.get(osal.Handle(q))
	if !ok {
		return osal.ErrParam
	}

	w, ok := k.works.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	switch {
	case w.state != workIdle && w.wq == wq:
		k.unqueueWork(w)
		return nil
	case wq.running == w:
		return osal.ErrWorkRunning
	default:
		return osal.ErrWorkNotFound
	}
}

func (k *Kernel) enqueueWork(w *workCB) {
	w.state = workQueued
	w.wq.items.PushBack(w)

	if sleeper := w.wq.idle.front(); sleeper != nil {
		k.wake(sleeper, nil)
	}
}

func (k *Kernel) unqueueWork(w *workCB) {
	switch w.state {
	case workQueued:
		items := &w.wq.items
		if i := items.Index(func(x *workCB) bool { return x == w }); i >= 0 {
			items.Remove(i)
		}
	case workDelayed:
		k.timeline.Cancel(w.evt)
		w.evt = nil
	}

	w.state = workIdle
	w.wq = nil
}

// workDue moves delayed work to its queue.
func (k *Kernel) workDue(w *workCB) {
	w.evt = nil
	k.enqueueWork(w)
}

func (k *Kernel) workerMain(arg any) {
	wq := arg.(*workQueueCB)

	for {
		k.enter()
		w, fn, warg, err := k.nextWork(wq)
		if err != nil {
			wq.worker = nil
			k.exit()

			return
		}
		k.exit()

		fn(warg)

		k.enter()
		k.workDone(wq, w)
		k.exit()
	}
}

// nextWork blocks the worker until wq has work and marks the first item as
// running. It fails if the wait ends with an error, such as osal.ErrDestroyed.
func (k *Kernel) nextWork(wq *workQueueCB) (*workCB, osal.WorkFunc, any, error) {
	for wq.items.Len() == 0 {
		err := k.block(&waiter{}, &wq.idle, osal.WaitForever, "workqueue "+wq.name)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	w := wq.items.PopFront()
	w.state = workIdle
	w.wq = nil
	w.runs++
	wq.running = w
	k.invoke(HookPosWorkStart, wq.worker.ref(), osal.Handle(w.handle))

	return w, w.fn, w.arg, nil
}

func (k *Kernel) workDone(wq *workQueueCB, w *workCB) {
	if wq.running == w {
		wq.running = nil
	}

	wq.done++
	k.invoke(HookPosWorkEnd, wq.worker.ref(), osal.Handle(w.handle))
}
