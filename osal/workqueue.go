package osal

// WorkFunc is executed by a work queue's worker task.
type WorkFunc func(arg any)

// WorkQueues defers callbacks to dedicated worker tasks.
type WorkQueues interface {
	WorkCreate(fn WorkFunc, arg any) (Work, error)
	WorkInit(b Block, fn WorkFunc, arg any) (Work, error)

	// WorkDelete cancels and frees work made by WorkCreate.
	WorkDelete(w Work) error

	// WorkDo submits work to the system work queue.
	WorkDo(w Work, delay Tick) error

	// WorkSubmit queues work on wq once delay ticks have passed.
	// Resubmitting pending work reschedules it.
	WorkSubmit(wq WorkQueue, w Work, delay Tick) error

	// WorkCancel removes pending work. It never waits for running work.
	WorkCancel(wq WorkQueue, w Work) error

	WorkQueueCreate(name string, stackSize int, prio uint8) (WorkQueue, error)
	WorkQueueDestroy(wq WorkQueue) error
}
