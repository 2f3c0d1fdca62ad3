package kernel

import (
	"github.com/sarchlab/cosit/memory"
	"github.com/sarchlab/cosit/osal"
)

// TaskInfo summarizes a task.
type TaskInfo struct {
	Handle       osal.Task `json:"handle"`
	Name         string    `json:"name"`
	State        string    `json:"state"`
	Priority     uint8     `json:"priority"`
	BasePriority uint8     `json:"base_priority"`
	Policy       string    `json:"policy"`
	Boosted      bool      `json:"boosted"`
	Slice        osal.Tick `json:"slice"`
	SliceLeft    osal.Tick `json:"slice_left"`
	VRuntime     uint64    `json:"vruntime"`
	WaitingOn    string    `json:"waiting_on,omitempty"`
	Owns         []string  `json:"owns,omitempty"`
	StackSize    int       `json:"stack_size"`
	Static       bool      `json:"static"`
	Switches     uint64    `json:"switches"`
	RunTicks     uint64    `json:"run_ticks"`
}

// ObjectInfo summarizes a kernel object other than a task. Fields that do
// not apply to the kind of the object are left zero.
type ObjectInfo struct {
	Kind     string      `json:"kind"`
	Handle   osal.Handle `json:"handle"`
	Name     string      `json:"name"`
	Static   bool        `json:"static"`
	Owner    string      `json:"owner,omitempty"`
	Count    uint64      `json:"count"`
	Capacity uint64      `json:"capacity"`
	Flags    uint32      `json:"flags"`
	Active   bool        `json:"active"`
	Period   osal.Tick   `json:"period"`
	Waiters  []string    `json:"waiters,omitempty"`
	Senders  []string    `json:"senders,omitempty"`
}

// State is a consistent view of a kernel.
type State struct {
	Now     osal.Tick    `json:"now"`
	Mode    string       `json:"mode"`
	Running bool         `json:"running"`
	Paused  bool         `json:"paused"`
	Current string       `json:"current"`
	Tasks   []TaskInfo   `json:"tasks"`
	Objects []ObjectInfo `json:"objects"`
	Heap    memory.Stats `json:"heap"`
}

// Snapshot returns the state of the kernel. It is safe to call from any
// goroutine.
func (k *Kernel) Snapshot() State {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := State{
		Now:     k.Now(),
		Mode:    k.cfg.Mode.String(),
		Running: k.state == kernelRunning,
		Paused:  k.paused.Load(),
		Heap:    k.heap.Stats(),
	}

	if k.current != nil {
		s.Current = k.current.name
	}

	k.tasks.each(func(_ osal.Handle, t *tcb) {
		s.Tasks = append(s.Tasks, k.taskInfo(t))
	})

	k.timers.each(func(h osal.Handle, t *timerCB) {
		var remaining osal.Tick
		if t.evt != nil {
			remaining = t.evt.Time - k.Now()
		}

		s.Objects = append(s.Objects, ObjectInfo{
			Kind: "timer", Handle: h, Name: t.name, Static: t.static(),
			Active: t.active, Period: t.period,
			Count: uint64(remaining), Capacity: t.fires,
		})
	})

	k.mutexes.each(func(h osal.Handle, m *mutexCB) {
		info := ObjectInfo{
			Kind: "mutex", Handle: h, Name: m.name, Static: m.static(),
			Count: uint64(m.count), Waiters: m.waiters.names(),
		}
		if m.owner != nil {
			info.Owner = m.owner.name
		}

		s.Objects = append(s.Objects, info)
	})

	k.sems.each(func(h osal.Handle, sem *semCB) {
		s.Objects = append(s.Objects, ObjectInfo{
			Kind: "sem", Handle: h, Name: sem.name, Static: sem.static(),
			Count: uint64(sem.count), Capacity: uint64(sem.max),
			Waiters: sem.waiters.names(),
		})
	})

	k.events.each(func(h osal.Handle, e *eventCB) {
		s.Objects = append(s.Objects, ObjectInfo{
			Kind: "event", Handle: h, Name: e.name, Static: e.static(),
			Flags: uint32(e.flags), Waiters: e.waiters.names(),
		})
	})

	k.mailboxes.each(func(h osal.Handle, mb *mailboxCB) {
		s.Objects = append(s.Objects, ObjectInfo{
			Kind: "mailbox", Handle: h, Name: mb.name, Static: mb.static(),
			Count: uint64(mb.count), Capacity: uint64(len(mb.slots)),
			Waiters: mb.receivers.names(),
		})
	})

	k.queues.each(func(h osal.Handle, q *queueCB) {
		s.Objects = append(s.Objects, ObjectInfo{
			Kind: "queue", Handle: h, Name: q.name, Static: q.static(),
			Count: uint64(q.count), Capacity: uint64(len(q.lens)),
			Waiters: q.receivers.names(), Senders: q.senders.names(),
		})
	})

	k.workqs.each(func(h osal.Handle, wq *workQueueCB) {
		var owner string
		if wq.worker != nil {
			owner = wq.worker.name
		}

		s.Objects = append(s.Objects, ObjectInfo{
			Kind: "workqueue", Handle: h, Name: wq.name,
			Owner: owner, Count: uint64(wq.items.Len()),
			Capacity: wq.done, Active: wq.running != nil,
		})
	})

	return s
}

func (k *Kernel) taskInfo(t *tcb) TaskInfo {
	info := TaskInfo{
		Handle:       t.handle,
		Name:         t.name,
		State:        t.publicState().String(),
		Priority:     t.prio,
		BasePriority: t.basePrio,
		Policy:       t.policy.String(),
		Boosted:      t.rtBoost,
		Slice:        t.slice,
		SliceLeft:    t.sliceLeft,
		VRuntime:     t.vruntime,
		StackSize:    len(t.stack),
		Static:       t.static(),
		Switches:     t.switches,
		RunTicks:     t.runTicks,
	}

	if t.isIdle {
		info.Policy = "idle"
	}

	if t.wait != nil {
		info.WaitingOn = t.wait.on
	}

	for _, m := range t.owned {
		info.Owns = append(info.Owns, m.name)
	}

	return info
}

// TaskState returns the scheduling state of t.
func (k *Kernel) TaskState(h osal.Task) (osal.TaskState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, ok := k.tasks.get(osal.Handle(h))
	if !ok {
		return osal.TaskDormant, osal.ErrParam
	}

	return t.publicState(), nil
}

// MutexOwner returns the task owning m, or the zero handle.
func (k *Kernel) MutexOwner(h osal.Mutex) (osal.Task, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.mutexes.get(osal.Handle(h))
	if !ok {
		return 0, osal.ErrParam
	}

	if m.owner == nil {
		return 0, nil
	}

	return m.owner.handle, nil
}
