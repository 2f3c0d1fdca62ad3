package scenario

import (
	"io"

	"github.com/sarchlab/cosit/osal"
)

func init() {
	register(Scenario{
		Name: "mutex-handoff",
		Description: "A non-nesting mutex refuses a second lock by its owner " +
			"and passes straight to the waiter on unlock",
		Run: mutexHandoff,
	})

	register(Scenario{
		Name: "priority-inversion",
		Description: "A medium-priority hog cannot delay a high-priority task " +
			"blocked on a mutex held by a low-priority task",
		Run: priorityInversion,
	})
}

func mutexHandoff(k osal.Kernel, out io.Writer) error {
	p := &printer{k: k, out: out}

	m, err := k.MutexCreate("m", 0)
	if err != nil {
		return err
	}

	g, err := newGroup(k)
	if err != nil {
		return err
	}

	_, err = g.spawn("A", 20, osal.SchedFIFO, func() {
		p.printf("A", "lock: %v", osal.StatusOf(k.MutexLock(m, osal.WaitForever)))
		p.printf("A", "lock again: %v",
			osal.StatusOf(k.MutexLock(m, osal.WaitForever)))

		_, _ = k.TaskSleep(5)

		prio, _ := k.TaskPriority(k.TaskSelf())
		p.printf("A", "priority %d while B waits", prio)

		err := k.MutexUnlock(m)
		prio, _ = k.TaskPriority(k.TaskSelf())
		p.printf("A", "unlock: %v, priority %d", osal.StatusOf(err), prio)
	})
	if err != nil {
		return err
	}

	_, err = g.spawn("B", 10, osal.SchedFIFO, func() {
		_, _ = k.TaskSleep(1)

		p.printf("B", "lock")
		p.printf("B", "lock: %v", osal.StatusOf(k.MutexLock(m, osal.WaitForever)))
		p.printf("B", "unlock: %v", osal.StatusOf(k.MutexUnlock(m)))
	})
	if err != nil {
		return err
	}

	if err := g.wait(); err != nil {
		return err
	}

	return k.MutexDelete(m)
}

func priorityInversion(k osal.Kernel, out io.Writer) error {
	p := &printer{k: k, out: out}

	m, err := k.MutexCreate("shared", 0)
	if err != nil {
		return err
	}

	g, err := newGroup(k)
	if err != nil {
		return err
	}

	tasks := []struct {
		name string
		prio uint8
		body func()
	}{
		{"L", 30, func() {
			p.printf("L", "lock: %v", osal.StatusOf(k.MutexLock(m, osal.WaitForever)))
			busy(k, 10)

			prio, _ := k.TaskPriority(k.TaskSelf())
			p.printf("L", "unlock at priority %d", prio)
			_ = k.MutexUnlock(m)

			prio, _ = k.TaskPriority(k.TaskSelf())
			p.printf("L", "done at priority %d", prio)
		}},
		{"M", 20, func() {
			_, _ = k.TaskSleep(3)

			p.printf("M", "running")
			busy(k, 20)
		}},
		{"H", 10, func() {
			_, _ = k.TaskSleep(2)

			start := k.TickGet()
			p.printf("H", "lock")
			err := k.MutexLock(m, osal.WaitForever)
			p.printf("H", "lock: %v after %d ticks",
				osal.StatusOf(err), k.TickGet()-start)
			_ = k.MutexUnlock(m)
		}},
	}

	for _, t := range tasks {
		if _, err := g.spawn(t.name, t.prio, osal.SchedFIFO, t.body); err != nil {
			return err
		}
	}

	if err := g.wait(); err != nil {
		return err
	}

	return k.MutexDelete(m)
}
