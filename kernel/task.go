package kernel

import "github.com/sarchlab/cosit/osal"

// TaskCreate creates a task whose control block and stack are charged to the
// kernel heap.
func (k *Kernel) TaskCreate(
	entry osal.TaskEntry,
	arg any,
	attr *osal.TaskAttr,
) (osal.Task, error) {
	k.enter()
	t, err := k.taskCreate(entry, arg, attr, nil, nil)
	k.exit()

	return t, err
}

// TaskInit creates a task in caller storage.
func (k *Kernel) TaskInit(
	b osal.Block,
	entry osal.TaskEntry,
	arg any,
	attr *osal.TaskAttr,
	stack []byte,
) (osal.Task, error) {
	k.enter()

	blk, ok := blockOf[TaskBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	t, err := k.taskCreate(entry, arg, attr, blk, stack)
	k.exit()

	return t, err
}

func (k *Kernel) taskCreate(
	entry osal.TaskEntry,
	arg any,
	attr *osal.TaskAttr,
	blk *TaskBlock,
	stack []byte,
) (osal.Task, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	t, err := k.spawn(entry, arg, attr, blk, stack)
	if err != nil {
		return 0, err
	}

	return t.handle, nil
}

func (k *Kernel) spawn(
	entry osal.TaskEntry,
	arg any,
	attr *osal.TaskAttr,
	blk *TaskBlock,
	stack []byte,
) (*tcb, error) {
	a := osal.DefaultTaskAttr()
	if attr != nil {
		a = *attr
	}

	if entry == nil ||
		a.Priority > osal.PriorityMax ||
		a.StackSize < MinStackSize ||
		a.Policy > osal.SchedRR ||
		a.TimeSlice > osal.MaxTimeout {
		return nil, osal.ErrParam
	}

	var t *tcb

	if blk != nil {
		if len(stack) < a.StackSize {
			return nil, osal.ErrParam
		}

		osal.Claim(blk)
		blk.cb = tcb{}
		t = &blk.cb
		t.block = blk
		t.stack = stack[:a.StackSize]
	} else {
		mem, err := k.charge(TaskBlockSize + uintptr(a.StackSize))
		if err != nil {
			return nil, err
		}

		t = &tcb{}
		t.mem = mem
		t.stack = mem[TaskBlockSize:]
	}

	t.name = a.Name
	t.entry = entry
	t.arg = arg
	t.basePrio = k.clamp(a.Priority)
	t.prio = t.basePrio
	t.policy = a.Policy
	t.cpu = a.CPU
	t.slice = a.TimeSlice
	if t.slice == 0 {
		t.slice = k.cfg.DefaultTimeSlice
	}
	t.sliceLeft = t.slice
	t.rqLevel = notQueued
	t.resume = make(chan signal, 1)
	t.exited = make(chan struct{})
	t.handle = osal.Task(k.tasks.add(t))

	if lo, ok := k.minVruntime(); ok {
		t.vruntime = lo
	}

	go k.taskMain(t)

	k.invoke(HookPosTaskCreate, t.ref(), nil)

	if a.Options&osal.TaskNoRun != 0 {
		t.state = stateSuspended
	} else {
		k.ready(t)
	}

	return t, nil
}

func (k *Kernel) newIdleTask() *tcb {
	t := &tcb{
		isIdle:   true,
		basePrio: osal.PriorityMax,
		prio:     osal.PriorityMax,
		policy:   osal.SchedFIFO,
		rqLevel:  notQueued,
		state:    stateReady,
		resume:   make(chan signal, 1),
		exited:   make(chan struct{}),
	}
	t.name = "idle"
	t.handle = osal.Task(k.tasks.add(t))

	go k.idleMain(t)

	return t
}

// TaskDelete deletes a created task. Deleting the calling task does not
// return.
func (k *Kernel) TaskDelete(t osal.Task) error {
	k.enter()
	err := k.taskDelete(t, false)
	k.exit()

	return err
}

// TaskDeinit deletes an initialised task and releases its block.
func (k *Kernel) TaskDeinit(t osal.Task) error {
	k.enter()
	err := k.taskDelete(t, true)
	k.exit()

	return err
}

func (k *Kernel) taskDelete(h osal.Task, static bool) error {
	if err := k.check(false); err != nil {
		return err
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok || t.isIdle || t.static() != static {
		return osal.ErrParam
	}

	if t.worker != nil {
		return osal.ErrPerm
	}

	if t == k.current {
		k.leave(0)
	}

	k.kill(t)

	if t == k.main {
		k.halt(nil)
	}

	return nil
}

// TaskExit ends the calling task. Its deferred functions run first. Called
// from outside a task, it returns without effect.
func (k *Kernel) TaskExit(code int32) {
	k.enter()

	if k.checkTask() != nil || k.current.worker != nil {
		k.exit()
		return
	}

	k.leave(code)
}

// TaskSuspend suspends t. A blocked task is suspended once its wait ends.
func (k *Kernel) TaskSuspend(h osal.Task) error {
	k.enter()
	err := k.taskSuspend(h)
	k.exit()

	return err
}

func (k *Kernel) taskSuspend(h osal.Task) error {
	if err := k.check(true); err != nil {
		return err
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok || t.isIdle {
		return osal.ErrParam
	}

	switch t.state {
	case stateReady:
		k.runq.remove(t)
		t.state = stateSuspended
	case stateRunning:
		t.state = stateSuspended
	case stateBlocked:
		t.suspendAfterWait = true
	}

	return nil
}

// TaskResume resumes a suspended task. Resuming any other task does nothing.
func (k *Kernel) TaskResume(h osal.Task) error {
	k.enter()
	err := k.taskResume(h)
	k.exit()

	return err
}

func (k *Kernel) taskResume(h osal.Task) error {
	if err := k.check(true); err != nil {
		return err
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	switch t.state {
	case stateSuspended:
		k.ready(t)
	case stateBlocked:
		t.suspendAfterWait = false
	}

	return nil
}

// TaskYield passes the CPU to the next ready task of the same priority.
func (k *Kernel) TaskYield() error {
	k.enter()
	err := k.taskYield()
	k.exit()

	return err
}

func (k *Kernel) taskYield() error {
	if err := k.checkTask(); err != nil {
		return err
	}

	cur := k.current

	next := k.runq.peek()
	if next == nil || !peers(next, cur) {
		return nil
	}

	cur.state = stateReady
	k.runq.push(cur, false)
	k.switchTo(k.runq.pop())

	return nil
}

// TaskSelf returns the running task, or the zero handle outside of tasks and
// in interrupt context.
func (k *Kernel) TaskSelf() osal.Task {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.current == nil || k.current.isIdle || k.isrDepth > 0 {
		return 0
	}

	return k.current.handle
}

// TaskName returns the name of t. It fails with osal.ErrISR in interrupt
// context.
func (k *Kernel) TaskName(h osal.Task) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.isrDepth > 0 {
		return "", osal.ErrISR
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok {
		return "", osal.ErrParam
	}

	return t.name, nil
}

// TaskFind returns the first live task called name, or the zero handle in
// interrupt context.
func (k *Kernel) TaskFind(name string) osal.Task {
	k.mu.Lock()
	defer k.mu.Unlock()

	var found osal.Task
	if k.isrDepth > 0 {
		return found
	}

	k.tasks.each(func(_ osal.Handle, t *tcb) {
		if found == 0 && t.name == name {
			found = t.handle
		}
	})

	return found
}

// TaskSleep blocks the calling task. Sleeping 0 ticks yields and sleeping
// forever suspends. The remaining ticks are returned when TaskWakeup ends the
// sleep early.
func (k *Kernel) TaskSleep(ticks osal.Tick) (osal.Tick, error) {
	k.enter()
	left, err := k.taskSleep(ticks)
	k.exit()

	return left, err
}

func (k *Kernel) taskSleep(ticks osal.Tick) (osal.Tick, error) {
	if err := k.checkTask(); err != nil {
		return 0, err
	}

	if !osal.ValidTimeout(ticks) {
		return 0, osal.ErrParam
	}

	switch ticks {
	case osal.NoWait:
		return 0, k.taskYield()
	case osal.WaitForever:
		k.current.state = stateSuspended
		k.schedule()

		return 0, nil
	}

	w := &waiter{sleep: true}
	err := k.block(w, nil, ticks, "sleep")

	return w.left, err
}

// TaskWakeup ends the sleep of t early.
func (k *Kernel) TaskWakeup(h osal.Task) error {
	k.enter()
	err := k.taskWakeup(h)
	k.exit()

	return err
}

func (k *Kernel) taskWakeup(h osal.Task) error {
	if err := k.check(true); err != nil {
		return err
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	w := t.wait
	if w == nil || !w.sleep {
		return osal.ErrTaskNotSleeping
	}

	if now := k.Now(); w.deadline > now {
		w.left = w.deadline - now
	}

	k.wake(w, nil)

	return nil
}

// TaskPriority returns the effective priority of t. It fails with
// osal.ErrISR in interrupt context.
func (k *Kernel) TaskPriority(h osal.Task) (uint8, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.isrDepth > 0 {
		return 0, osal.ErrISR
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok {
		return 0, osal.ErrParam
	}

	return t.prio, nil
}

// TaskSetPriority changes the base priority of t.
func (k *Kernel) TaskSetPriority(h osal.Task, prio uint8) error {
	k.enter()
	err := k.taskSetPriority(h, prio)
	k.exit()

	return err
}

func (k *Kernel) taskSetPriority(h osal.Task, prio uint8) error {
	if err := k.check(false); err != nil {
		return err
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok || t.isIdle || prio > osal.PriorityMax {
		return osal.ErrParam
	}

	t.basePrio = k.clamp(prio)
	k.updatePriority(t)

	return nil
}

// TaskTimeSlice returns the ticks left in the current slice of t.
func (k *Kernel) TaskTimeSlice(h osal.Task) (osal.Tick, error) {
	k.enter()
	left, err := k.taskTimeSlice(h)
	k.exit()

	return left, err
}

func (k *Kernel) taskTimeSlice(h osal.Task) (osal.Tick, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok {
		return 0, osal.ErrParam
	}

	if t.policy != osal.SchedRR {
		return 0, osal.ErrTaskNotRR
	}

	return t.sliceLeft, nil
}

// TaskSetTimeSlice sets the slice of t. Zero selects the default slice.
func (k *Kernel) TaskSetTimeSlice(h osal.Task, slice osal.Tick) error {
	k.enter()
	err := k.taskSetTimeSlice(h, slice)
	k.exit()

	return err
}

func (k *Kernel) taskSetTimeSlice(h osal.Task, slice osal.Tick) error {
	if err := k.check(false); err != nil {
		return err
	}

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok || slice > osal.MaxTimeout {
		return osal.ErrParam
	}

	if t.policy != osal.SchedRR {
		return osal.ErrTaskNotRR
	}

	if slice == 0 {
		slice = k.cfg.DefaultTimeSlice
	}

	t.slice = slice
	t.sliceLeft = slice

	return nil
}
