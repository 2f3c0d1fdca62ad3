// Package kernel is a single-CPU, priority-preemptive reference backend of
// the osal contract.
//
// Each task runs on its own goroutine, but the kernel hands a single CPU
// baton between them, so exactly one task executes at a time and the kernel
// always knows the caller of an operation. Scheduling decisions are taken
// whenever a task enters the kernel. A task that never calls the kernel is
// not preempted until it does.
//
// Tick processing, timer callbacks and interrupts raised with RaiseInterrupt
// or ScheduleInterrupt run in interrupt context on the goroutine that holds
// the CPU. Blocking operations are rejected there with osal.ErrISR.
//
// In ModeVirtual the tick advances only while a task spins or while nothing
// can run, in which case the clock jumps straight to the next deadline. Runs
// are therefore deterministic. In ModeRealtime a TickSource drives the tick.
//
// Hooks are invoked with the kernel lock held and must not call the kernel.
package kernel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/cosit/hooking"
	"github.com/sarchlab/cosit/memory"
	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

var (
	// ErrStalled is returned by Run in virtual mode when no task can ever run
	// again.
	ErrStalled = errors.New("kernel stalled: no task is ready and no event is pending")

	// ErrAlreadyRan is returned by a second call to Run.
	ErrAlreadyRan = errors.New("kernel already ran")
)

type kernelState uint8

const (
	kernelCreated kernelState = iota
	kernelRunning
	kernelStopping
	kernelStopped
)

// Kernel is the reference backend. Apart from Run, Stop, Pause, Continue,
// RaiseInterrupt, ScheduleInterrupt and Snapshot, its methods must be called
// from tasks or interrupt handlers of the kernel, or from the host goroutine
// before Run.
type Kernel struct {
	hooking.HookableBase

	cfg  Config
	heap *memory.Heap

	mu       sync.Mutex
	held     bool
	now      atomic.Uint64
	timeline *timing.Queue
	runq     runQueue
	current  *tcb
	idle     *tcb
	main     *tcb
	isrDepth int
	rotate   bool

	tasks     table[*tcb]
	timers    table[*timerCB]
	mutexes   table[*mutexCB]
	sems      table[*semCB]
	events    table[*eventCB]
	mailboxes table[*mailboxCB]
	queues    table[*queueCB]
	works     table[*workCB]
	workqs    table[*workQueueCB]
	sysWQ     *workQueueCB

	irqLock sync.Mutex
	irqs    []func()
	wakeup  chan struct{}
	stopReq atomic.Bool
	paused  atomic.Bool
	source  timing.TickSource

	state  kernelState
	dying  *tcb
	last   *tcb
	done   chan struct{}
	result error
}

var _ osal.Kernel = (*Kernel)(nil)

// New creates a kernel. The idle task and, if configured, the system work
// queue exist from the start, so objects and tasks can be created before Run.
func New(cfg Config) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:       cfg,
		heap:      memory.New(cfg.HeapSize),
		timeline:  timing.NewQueue(),
		tasks:     newTable[*tcb](osal.KindTask),
		timers:    newTable[*timerCB](osal.KindTimer),
		mutexes:   newTable[*mutexCB](osal.KindMutex),
		sems:      newTable[*semCB](osal.KindSem),
		events:    newTable[*eventCB](osal.KindEvent),
		mailboxes: newTable[*mailboxCB](osal.KindMailbox),
		queues:    newTable[*queueCB](osal.KindQueue),
		works:     newTable[*workCB](osal.KindWork),
		workqs:    newTable[*workQueueCB](osal.KindWorkQueue),
		wakeup:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	if cfg.Logger != nil {
		k.AcceptHook(hooking.NewLogHook(cfg.Logger,
			HookPosTaskCreate, HookPosTaskDelete, HookPosTaskSwitch,
			HookPosBlock, HookPosWake, HookPosTimerFire,
			HookPosWorkStart, HookPosWorkEnd))
	}

	k.idle = k.newIdleTask()

	if cfg.SysWorkQueue {
		wq, err := k.newWorkQueue(
			"sysworkq", cfg.SysWorkQueueStack, cfg.SysWorkQueuePriority)
		if err != nil {
			return nil, fmt.Errorf("create system work queue: %w", err)
		}

		k.sysWQ = wq
	}

	return k, nil
}

// Config returns the configuration of the kernel.
func (k *Kernel) Config() Config {
	return k.cfg
}

// Run starts scheduling with entry running as the main task and blocks until
// the main task returns, Stop is called, a task panics, or, in virtual mode,
// the kernel stalls. When Run returns, every task goroutine has exited.
func (k *Kernel) Run(entry osal.TaskEntry, arg any) error {
	if entry == nil {
		return osal.ErrParam
	}

	k.mu.Lock()

	if k.state != kernelCreated {
		k.mu.Unlock()
		return ErrAlreadyRan
	}

	attr := osal.DefaultTaskAttr()
	attr.Name = "main"
	attr.Priority = k.cfg.MainPriority
	attr.StackSize = k.cfg.MainStackSize

	first, err := k.spawn(entry, arg, &attr, nil, nil)
	if err != nil {
		k.mu.Unlock()
		return fmt.Errorf("create main task: %w", err)
	}

	k.main = first
	k.state = kernelRunning

	if k.cfg.Mode == ModeRealtime {
		k.source = k.cfg.TickSource
		if k.source == nil {
			k.source = timing.NewWallClock(k.cfg.Freq)
		}
	}

	next := k.runq.pop()
	k.current = next
	next.state = stateRunning
	k.invoke(HookPosTaskSwitch, next.ref(), nil)
	k.mu.Unlock()

	next.resume <- signalRun

	<-k.done

	if k.last != nil {
		<-k.last.exited
	}

	return k.result
}

// Stop asks the kernel to shut down. Run returns nil once every task has
// exited. Stop is safe to call from any goroutine.
func (k *Kernel) Stop() {
	k.stopReq.Store(true)
	k.signal()
}

// Pause freezes the tick. Tasks that are ready keep running, but no timeout,
// timer or scheduled interrupt fires until Continue is called.
func (k *Kernel) Pause() {
	k.paused.Store(true)
}

// Continue resumes a paused kernel.
func (k *Kernel) Continue() {
	k.paused.Store(false)
	k.signal()
}

// Paused reports whether the kernel is paused.
func (k *Kernel) Paused() bool {
	return k.paused.Load()
}

// Now returns the current tick. It is safe to call from any goroutine.
func (k *Kernel) Now() osal.Tick {
	return osal.Tick(k.now.Load())
}

// Heap returns the heap statistics.
func (k *Kernel) Heap() memory.Stats {
	return k.heap.Stats()
}

func (k *Kernel) signal() {
	select {
	case k.wakeup <- struct{}{}:
	default:
	}
}

// enter acquires the kernel lock on behalf of the caller, services pending
// ticks and interrupts, and lets a task that was outranked meanwhile give up
// the CPU before the operation starts. A task being terminated only runs its
// deferred functions and never takes part in scheduling.
func (k *Kernel) enter() {
	k.mu.Lock()
	k.held = true

	if k.dying != nil {
		return
	}

	k.service()
	k.preempt()
}

// exit reschedules if the operation readied a more urgent task and releases
// the kernel lock.
func (k *Kernel) exit() {
	if k.dying == nil {
		k.preempt()
	}

	k.held = false
	k.mu.Unlock()
}

// check rejects callers once the kernel is shutting down and, unless isrOK,
// callers in interrupt context.
func (k *Kernel) check(isrOK bool) error {
	if k.state >= kernelStopping || k.dying != nil {
		return osal.ErrPerm
	}

	if k.isrDepth > 0 && !isrOK {
		return osal.ErrISR
	}

	return nil
}

// checkTask additionally requires a running task as the caller.
func (k *Kernel) checkTask() error {
	if err := k.check(false); err != nil {
		return err
	}

	if k.state != kernelRunning || k.current == nil || k.current.isIdle {
		return osal.ErrPerm
	}

	return nil
}

func (k *Kernel) invoke(pos *hooking.HookPos, item, detail any) {
	if k.NumHooks() == 0 {
		return
	}

	k.InvokeHook(hooking.HookCtx{
		Domain: k,
		Pos:    pos,
		Now:    k.now.Load(),
		Item:   item,
		Detail: detail,
	})
}

// halt shuts the kernel down from the goroutine that holds the CPU and then
// terminates that goroutine.
func (k *Kernel) halt(cause error) {
	self := k.current
	k.shutdown(cause)

	if self != nil {
		self.killed = true
	}

	k.held = false
	k.mu.Unlock()
	runtime.Goexit()
}

// shutdown terminates every task except the caller's and releases Run.
func (k *Kernel) shutdown(cause error) {
	if k.state >= kernelStopping {
		return
	}

	k.state = kernelStopping
	k.result = cause
	self := k.current

	k.last = self

	var victims []*tcb
	k.tasks.each(func(_ osal.Handle, t *tcb) {
		if t != self {
			victims = append(victims, t)
		}
	})

	for _, t := range victims {
		k.terminate(t)
	}

	if k.source != nil {
		k.source.Stop()
	}

	k.state = kernelStopped
	close(k.done)
}

// terminate stops the goroutine of a task that does not hold the CPU. The
// task's deferred functions run while the caller waits; kernel calls they
// make fail with osal.ErrPerm.
func (k *Kernel) terminate(t *tcb) {
	t.killed = true
	k.dying = t
	k.held = false
	k.mu.Unlock()

	t.resume <- signalKill
	<-t.exited

	k.mu.Lock()
	k.held = true
	k.dying = nil
}
