package kernel

import "github.com/sarchlab/cosit/hooking"

// Hook positions of the kernel. Item is the TaskRef of the task concerned
// unless noted otherwise.
var (
	// HookPosTaskCreate fires when a task is created.
	HookPosTaskCreate = &hooking.HookPos{Name: "TaskCreate"}

	// HookPosTaskDelete fires when a task exits or is deleted. Detail is the
	// exit code.
	HookPosTaskDelete = &hooking.HookPos{Name: "TaskDelete"}

	// HookPosTaskSwitch fires when the CPU passes to Item. Detail is the
	// TaskRef of the previous task, or nil at boot.
	HookPosTaskSwitch = &hooking.HookPos{Name: "TaskSwitch"}

	// HookPosBlock fires when a task blocks. Detail describes the object.
	HookPosBlock = &hooking.HookPos{Name: "Block"}

	// HookPosWake fires when a blocked task is made runnable. Detail is the
	// osal.Status the wait ends with.
	HookPosWake = &hooking.HookPos{Name: "Wake"}

	// HookPosTimerFire fires before a timer callback runs. Item is the timer
	// name.
	HookPosTimerFire = &hooking.HookPos{Name: "TimerFire"}

	// HookPosWorkStart and HookPosWorkEnd bracket a work item. Item is the
	// TaskRef of the worker and Detail the work handle.
	HookPosWorkStart = &hooking.HookPos{Name: "WorkStart"}
	HookPosWorkEnd   = &hooking.HookPos{Name: "WorkEnd"}

	// HookPosTick fires after every tick. Item is nil.
	HookPosTick = &hooking.HookPos{Name: "Tick"}
)
