package scenario

import (
	"io"

	"github.com/sarchlab/cosit/osal"
)

func init() {
	register(Scenario{
		Name: "timers",
		Description: "A periodic timer posts to a mailbox from interrupt " +
			"context and a one-shot timer ends the run",
		Run: timers,
	})

	register(Scenario{
		Name: "workqueue",
		Description: "Work items run on a dedicated queue and the system " +
			"queue, with delays and a cancellation",
		Run: workQueue,
	})

	register(Scenario{
		Name: "round-robin",
		Description: "Tasks of equal priority take turns at the end of " +
			"their time slices",
		Run: roundRobin,
	})
}

func timers(k osal.Kernel, out io.Writer) error {
	p := &printer{k: k, out: out}

	mb, err := k.MailboxCreate("fires", 4, osal.IPCFIFO)
	if err != nil {
		return err
	}

	alarm, err := k.SemCreate("alarm", 0, 1)
	if err != nil {
		return err
	}

	var fires uint32

	periodic, err := k.TimerCreate("periodic", func(any) {
		fires++
		_ = k.MailboxSend(mb, fires)
	}, nil, 2, 4, osal.TimerActivate)
	if err != nil {
		return err
	}

	oneShot, err := k.TimerCreate("alarm", func(any) {
		_ = k.SemRelease(alarm)
	}, nil, 11, 0, osal.TimerActivate)
	if err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		n, err := k.MailboxRecv(mb, osal.WaitForever)
		if err != nil {
			return err
		}

		p.printf("main", "fire %d", n)
	}

	if err := k.TimerStop(periodic); err != nil {
		return err
	}

	remaining, period, _ := k.TimerTime(periodic)
	p.printf("main", "periodic stopped, remaining %d, period %d",
		remaining, period)

	if err := k.SemWait(alarm, osal.WaitForever); err != nil {
		return err
	}

	p.printf("main", "alarm")

	for _, t := range []osal.Timer{periodic, oneShot} {
		if err := k.TimerDelete(t); err != nil {
			return err
		}
	}

	if err := k.SemDelete(alarm); err != nil {
		return err
	}

	return k.MailboxDelete(mb)
}

func workQueue(k osal.Kernel, out io.Writer) error {
	p := &printer{k: k, out: out}

	done, err := k.SemCreate("work-done", 0, osal.SemNoMax)
	if err != nil {
		return err
	}

	wq, err := k.WorkQueueCreate("wq", 1024, 15)
	if err != nil {
		return err
	}

	names := []string{"w1", "w2", "w3", "w4"}
	works := make([]osal.Work, len(names))

	for i, name := range names {
		works[i], err = k.WorkCreate(func(any) {
			p.printf(name, "ran")
			_ = k.SemRelease(done)
		}, nil)
		if err != nil {
			return err
		}
	}

	submits := []struct {
		w     osal.Work
		delay osal.Tick
	}{
		{works[0], 0},
		{works[1], 10},
		{works[2], 5},
	}

	for _, s := range submits {
		if err := k.WorkSubmit(wq, s.w, s.delay); err != nil {
			return err
		}
	}

	if err := k.WorkDo(works[3], 3); err != nil {
		return err
	}

	p.printf("main", "cancel w2: %v", osal.StatusOf(k.WorkCancel(wq, works[1])))
	p.printf("main", "cancel w2 again: %v",
		osal.StatusOf(k.WorkCancel(wq, works[1])))

	for i := 0; i < 3; i++ {
		if err := k.SemWait(done, osal.WaitForever); err != nil {
			return err
		}
	}

	for _, w := range works {
		if err := k.WorkDelete(w); err != nil {
			return err
		}
	}

	if err := k.WorkQueueDestroy(wq); err != nil {
		return err
	}

	return k.SemDelete(done)
}

func roundRobin(k osal.Kernel, out io.Writer) error {
	p := &printer{k: k, out: out}

	g, err := newGroup(k)
	if err != nil {
		return err
	}

	for _, name := range []string{"A", "B", "C"} {
		_, err := g.spawn(name, 20, osal.SchedRR, func() {
			for i := 0; i < 2; i++ {
				p.printf(name, "turn %d", i)
				busy(k, 3)
			}
		})
		if err != nil {
			return err
		}
	}

	return g.wait()
}
