package kernel

import "github.com/sarchlab/cosit/osal"

type eventCB struct {
	objHeader

	handle  osal.Event
	flags   osal.EventFlag
	waiters waitQueue
}

func validWaitOptions(opts osal.EventOption) bool {
	const known = osal.EventWaitAny | osal.EventWaitAll | osal.EventWaitClear

	anyOf := opts&osal.EventWaitAny != 0
	allOf := opts&osal.EventWaitAll != 0

	return opts&^known == 0 && anyOf != allOf
}

// matchFlags returns the expected flags that are set and whether they
// satisfy the wait.
func matchFlags(
	flags, expect osal.EventFlag,
	opts osal.EventOption,
) (osal.EventFlag, bool) {
	m := flags & expect

	if opts&osal.EventWaitAll != 0 {
		return m, m == expect
	}

	return m, m != 0
}

// EventCreate creates an event flag group.
func (k *Kernel) EventCreate(name string, init osal.EventFlag) (osal.Event, error) {
	k.enter()
	e, err := k.eventCreate(nil, name, init)
	k.exit()

	return e, err
}

// EventInit creates an event flag group in caller storage.
func (k *Kernel) EventInit(
	b osal.Block,
	name string,
	init osal.EventFlag,
) (osal.Event, error) {
	k.enter()

	blk, ok := blockOf[EventBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	e, err := k.eventCreate(blk, name, init)
	k.exit()

	return e, err
}

func (k *Kernel) eventCreate(
	blk *EventBlock,
	name string,
	init osal.EventFlag,
) (osal.Event, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	var e *eventCB

	if blk != nil {
		osal.Claim(blk)
		blk.cb = eventCB{}
		e = &blk.cb
		e.block = blk
	} else {
		mem, err := k.charge(EventBlockSize)
		if err != nil {
			return 0, err
		}

		e = &eventCB{}
		e.mem = mem
	}

	e.name = name
	e.flags = init
	e.waiters = newWaitQueue(osal.IPCPriority)
	e.handle = osal.Event(k.events.add(e))

	return e.handle, nil
}

// EventDelete deletes a created event group. Its waiters fail with
// osal.ErrDestroyed.
func (k *Kernel) EventDelete(h osal.Event) error {
	k.enter()
	err := k.eventDelete(h, false)
	k.exit()

	return err
}

// EventDeinit deletes an initialised event group and releases its block.
func (k *Kernel) EventDeinit(h osal.Event) error {
	k.enter()
	err := k.eventDelete(h, true)
	k.exit()

	return err
}

func (k *Kernel) eventDelete(h osal.Event, static bool) error {
	if err := k.check(false); err != nil {
		return err
	}

	e, ok := k.events.get(osal.Handle(h))
	if !ok || e.static() != static {
		return osal.ErrParam
	}

	k.wakeAll(&e.waiters, osal.ErrDestroyed)
	k.events.remove(osal.Handle(h))
	k.discharge(&e.objHeader)

	return nil
}

// EventWait waits until the flags of e satisfy expect under opts and returns
// the expected flags that were set.
func (k *Kernel) EventWait(
	h osal.Event,
	expect osal.EventFlag,
	timeout osal.Tick,
	opts osal.EventOption,
) (osal.EventFlag, error) {
	k.enter()
	got, err := k.eventWait(h, expect, timeout, opts)
	k.exit()

	return got, err
}

func (k *Kernel) eventWait(
	h osal.Event,
	expect osal.EventFlag,
	timeout osal.Tick,
	opts osal.EventOption,
) (osal.EventFlag, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	e, ok := k.events.get(osal.Handle(h))
	if !ok || expect == 0 || !validWaitOptions(opts) ||
		!osal.ValidTimeout(timeout) {
		return 0, osal.ErrParam
	}

	if m, ok := matchFlags(e.flags, expect, opts); ok {
		if opts&osal.EventWaitClear != 0 {
			e.flags &^= m
		}

		return m, nil
	}

	if timeout == osal.NoWait {
		return 0, osal.ErrTimeout
	}

	if err := k.checkTask(); err != nil {
		return 0, err
	}

	w := &waiter{mask: expect, opts: opts}
	err := k.block(w, &e.waiters, timeout, "event "+e.name)

	return w.match, err
}

// EventRelease posts set to e. Without osal.EventReleaseKeep the flags are
// replaced by set. Waiters are then served in queue order and each clearing
// waiter clears its match before the next one is evaluated.
func (k *Kernel) EventRelease(h osal.Event, set osal.EventFlag, opts osal.EventOption) error {
	k.enter()
	err := k.eventRelease(h, set, opts)
	k.exit()

	return err
}

func (k *Kernel) eventRelease(h osal.Event, set osal.EventFlag, opts osal.EventOption) error {
	if err := k.check(true); err != nil {
		return err
	}

	e, ok := k.events.get(osal.Handle(h))
	if !ok || opts&^osal.EventReleaseKeep != 0 {
		return osal.ErrParam
	}

	if opts&osal.EventReleaseKeep != 0 {
		e.flags |= set
	} else {
		e.flags = set
	}

	for i := 0; i < e.waiters.len(); {
		w := e.waiters.at(i)

		m, ok := matchFlags(e.flags, w.mask, w.opts)
		if !ok {
			i++
			continue
		}

		if w.opts&osal.EventWaitClear != 0 {
			e.flags &^= m
		}

		w.match = m
		k.wake(w, nil)
	}

	return nil
}

// EventFlags returns the flags of e.
func (k *Kernel) EventFlags(h osal.Event) (osal.EventFlag, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.events.get(osal.Handle(h))
	if !ok {
		return 0, osal.ErrParam
	}

	return e.flags, nil
}
