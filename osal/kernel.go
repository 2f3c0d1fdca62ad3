// Package osal defines the portable kernel contract. Applications are written
// against Kernel and run unmodified on any backend that implements it.
//
// Every fallible operation returns nil or a Status. Blocking operations take
// a Tick timeout where NoWait polls and WaitForever never expires. Blocked
// tasks are served in priority order, FIFO among equal priorities, unless the
// object was created with IPCFIFO ordering.
package osal

// Kernel is the complete contract a backend implements.
type Kernel interface {
	Clock
	Tasks
	Timers
	Memory
	Mutexes
	Semaphores
	Events
	Mailboxes
	Queues
	WorkQueues
}
