// Package osaltest is a conformance suite for osal backends. A backend
// registers it from its own ginkgo test suite:
//
//	var _ = osaltest.DescribeBackend("my backend", myBackend{})
//
// Every spec boots a fresh kernel, runs a small application as its main
// task and checks what the application observed once the kernel stopped.
package osaltest

import (
	"fmt"
	"sync"

	"github.com/onsi/ginkgo/v2"

	"github.com/sarchlab/cosit/osal"
)

// A Backend boots kernels for the suite.
type Backend interface {
	// Boot runs main as the main task of a fresh kernel and returns when
	// the kernel has stopped.
	Boot(main func(k osal.Kernel)) error

	// Interrupt runs fn in interrupt context of k after the given number of
	// ticks.
	Interrupt(k osal.Kernel, after osal.Tick, fn func())
}

// The suite runs its main task at mainPrio and places helper tasks around it.
const mainPrio uint8 = 20

func above(n uint8) uint8 { return mainPrio - n }
func below(n uint8) uint8 { return mainPrio + n }

// DescribeBackend registers the conformance specs for b.
func DescribeBackend(name string, b Backend) bool {
	return ginkgo.Describe(name, func() {
		describeTime(b)
		describeTasks(b)
		describeMutex(b)
		describeSem(b)
		describeEvent(b)
		describeMailbox(b)
		describeQueue(b)
		describeTimer(b)
		describeWorkQueue(b)
		describeMemory(b)
		describeInterrupts(b)
		describeHandles(b)
	})
}

func boot(b Backend, main func(k osal.Kernel)) error {
	return b.Boot(func(k osal.Kernel) {
		must(k.TaskSetPriority(k.TaskSelf(), mainPrio))
		main(k)
	})
}

// recorder collects what tasks and interrupts observe.
type recorder struct {
	lock    sync.Mutex
	entries []string
}

func (r *recorder) add(format string, args ...any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.entries = append(r.entries, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]string(nil), r.entries...)
}

func task(k osal.Kernel, name string, prio uint8, fn func()) osal.Task {
	attr := osal.DefaultTaskAttr()
	attr.Name = name
	attr.Priority = prio

	t, err := k.TaskCreate(func(any) { fn() }, nil, &attr)
	if err != nil {
		panic(fmt.Sprintf("create task %s: %v", name, err))
	}

	return t
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func must1[T any](v T, err error) T {
	must(err)
	return v
}

func sleep(k osal.Kernel, ticks osal.Tick) {
	must1(k.TaskSleep(ticks))
}
