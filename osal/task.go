package osal

// TaskEntry is the body of a task.
type TaskEntry func(arg any)

// SchedPolicy selects the scheduling class of a task.
type SchedPolicy uint8

// Scheduling policies. Real-time classes (FIFO and RR) always run before the
// fair class.
const (
	SchedFair SchedPolicy = iota
	SchedFIFO
	SchedRR
)

func (p SchedPolicy) String() string {
	switch p {
	case SchedFair:
		return "fair"
	case SchedFIFO:
		return "fifo"
	case SchedRR:
		return "rr"
	default:
		return "unknown"
	}
}

// TaskOption modifies task creation.
type TaskOption uint32

// TaskNoRun creates the task suspended.
const TaskNoRun TaskOption = 1 << 0

// PriorityMax is the lowest priority a task may have. Zero is the highest.
const PriorityMax uint8 = 100

// TaskAttr describes a task to create.
type TaskAttr struct {
	Name      string
	StackSize int
	Priority  uint8
	TimeSlice Tick
	Policy    SchedPolicy
	CPU       uint8
	Options   TaskOption
}

// DefaultTaskAttr returns the attributes used when none are given.
func DefaultTaskAttr() TaskAttr {
	return TaskAttr{
		Name:      "default_task",
		StackSize: 512,
		Priority:  5,
		TimeSlice: 10,
		Policy:    SchedRR,
	}
}

// TaskState is the scheduling state of a task.
type TaskState uint8

// Task states.
const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocked
	TaskSuspended
	TaskDormant
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskSuspended:
		return "suspended"
	case TaskDormant:
		return "dormant"
	default:
		return "unknown"
	}
}

// Tasks manages task lifecycle and scheduling parameters.
type Tasks interface {
	// TaskCreate creates a task whose control block and stack come from the
	// kernel heap. A nil attr selects DefaultTaskAttr.
	TaskCreate(entry TaskEntry, arg any, attr *TaskAttr) (Task, error)

	// TaskInit creates a task in caller-owned storage.
	TaskInit(
		b Block,
		entry TaskEntry,
		arg any,
		attr *TaskAttr,
		stack []byte,
	) (Task, error)

	// TaskDelete destroys a task made by TaskCreate. Deleting the calling
	// task does not return.
	TaskDelete(t Task) error

	// TaskDeinit destroys a task made by TaskInit and returns its storage to
	// the caller.
	TaskDeinit(t Task) error

	// TaskExit terminates the calling task. It does not return.
	TaskExit(code int32)

	TaskSuspend(t Task) error
	TaskResume(t Task) error
	TaskYield() error
	// TaskSelf returns the calling task. It returns the zero handle in
	// interrupt context, where TaskName and TaskFind are refused too.
	TaskSelf() Task
	TaskName(t Task) (string, error)

	// TaskFind returns the first live task with the name, or the zero handle.
	TaskFind(name string) Task

	// TaskSleep blocks the calling task. Sleeping 0 ticks yields and sleeping
	// WaitForever suspends. The remaining ticks are non-zero only if the sleep
	// was ended by TaskWakeup.
	TaskSleep(ticks Tick) (remaining Tick, err error)

	// TaskWakeup ends the sleep of a task early.
	TaskWakeup(t Task) error

	// TaskPriority returns the effective priority, including inheritance.
	TaskPriority(t Task) (uint8, error)
	TaskSetPriority(t Task, prio uint8) error

	// TaskTimeSlice returns the remaining time slice of a round-robin task.
	TaskTimeSlice(t Task) (Tick, error)
	TaskSetTimeSlice(t Task, slice Tick) error
}
