package scenario

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/cosit/osal"
)

func init() {
	register(Scenario{
		Name: "producer-consumer",
		Description: "A fast producer fills a message queue and waits " +
			"while a slow consumer drains it",
		Run: producerConsumer,
	})

	register(Scenario{
		Name: "event-fanout",
		Description: "One controller releases event flags that wake " +
			"waiters with ANY, ALL and clear-on-match conditions",
		Run: eventFanout,
	})
}

const (
	itemCount = 8
	itemSize  = 16
)

func producerConsumer(k osal.Kernel, out io.Writer) error {
	p := &printer{k: k, out: out}

	q, err := k.QueueCreate("items", itemSize, 4, osal.IPCFIFO)
	if err != nil {
		return err
	}

	g, err := newGroup(k)
	if err != nil {
		return err
	}

	_, err = g.spawn("consumer", 10, osal.SchedFIFO, func() {
		buf := make([]byte, itemSize)

		for i := 0; i < itemCount; i++ {
			n, err := k.QueueRecv(q, buf, osal.WaitForever)
			if err != nil {
				p.printf("consumer", "receive: %v", osal.StatusOf(err))
				return
			}

			p.printf("consumer", "got %s", buf[:n])
			_, _ = k.TaskSleep(3)
		}
	})
	if err != nil {
		return err
	}

	_, err = g.spawn("producer", 20, osal.SchedFIFO, func() {
		for i := 0; i < itemCount; i++ {
			msg := []byte(fmt.Sprintf("item-%d", i))

			err := k.QueueSend(q, msg)
			if errors.Is(err, osal.ErrQueueFull) {
				p.printf("producer", "queue full at item-%d, waiting", i)
				err = k.QueueSendWait(q, msg, osal.WaitForever)
			}

			if err != nil {
				p.printf("producer", "send: %v", osal.StatusOf(err))
				return
			}
		}

		p.printf("producer", "sent %d items", itemCount)
	})
	if err != nil {
		return err
	}

	if err := g.wait(); err != nil {
		return err
	}

	return k.QueueDelete(q)
}

func eventFanout(k osal.Kernel, out io.Writer) error {
	p := &printer{k: k, out: out}

	e, err := k.EventCreate("flags", 0)
	if err != nil {
		return err
	}

	g, err := newGroup(k)
	if err != nil {
		return err
	}

	waiters := []struct {
		name    string
		expect  osal.EventFlag
		opts    osal.EventOption
		timeout osal.Tick
	}{
		{"any", 0b011, osal.EventWaitAny | osal.EventWaitClear, osal.WaitForever},
		{"all", 0b110, osal.EventWaitAll, osal.WaitForever},
		{"bit2", 0b100, osal.EventWaitAny, 50},
		{"late", 0b1000, osal.EventWaitAny, 20},
	}

	for i, w := range waiters {
		_, err := g.spawn(w.name, uint8(10+i), osal.SchedFIFO, func() {
			match, err := k.EventWait(e, w.expect, w.timeout, w.opts)
			if err != nil {
				p.printf(w.name, "wait: %v", osal.StatusOf(err))
				return
			}

			p.printf(w.name, "woke with %#b", match)
		})
		if err != nil {
			return err
		}
	}

	_, err = g.spawn("ctl", 20, osal.SchedFIFO, func() {
		releases := []struct {
			at   osal.Tick
			set  osal.EventFlag
			opts osal.EventOption
		}{
			{5, 0b010, osal.EventReleaseKeep},
			{10, 0b100, osal.EventReleaseKeep},
			{15, 0b110, 0},
		}

		for _, r := range releases {
			_, _ = k.TaskSleep(r.at - k.TickGet())

			p.printf("ctl", "release %#b", r.set)
			_ = k.EventRelease(e, r.set, r.opts)
		}
	})
	if err != nil {
		return err
	}

	if err := g.wait(); err != nil {
		return err
	}

	return k.EventDelete(e)
}
