package kernel

import "github.com/sarchlab/cosit/osal"

type semCB struct {
	objHeader

	handle  osal.Sem
	count   uint32
	max     uint32
	waiters waitQueue
}

// SemCreate creates a counting semaphore. A max of osal.SemNoMax leaves the
// count uncapped.
func (k *Kernel) SemCreate(name string, init, max uint32) (osal.Sem, error) {
	k.enter()
	s, err := k.semCreate(nil, name, init, max)
	k.exit()

	return s, err
}

// SemInit creates a counting semaphore in caller storage.
func (k *Kernel) SemInit(b osal.Block, name string, init, max uint32) (osal.Sem, error) {
	k.enter()

	blk, ok := blockOf[SemBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	s, err := k.semCreate(blk, name, init, max)
	k.exit()

	return s, err
}

func (k *Kernel) semCreate(blk *SemBlock, name string, init, max uint32) (osal.Sem, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	if max == 0 || init > max {
		return 0, osal.ErrParam
	}

	var s *semCB

	if blk != nil {
		osal.Claim(blk)
		blk.cb = semCB{}
		s = &blk.cb
		s.block = blk
	} else {
		mem, err := k.charge(SemBlockSize)
		if err != nil {
			return 0, err
		}

		s = &semCB{}
		s.mem = mem
	}

	s.name = name
	s.count = init
	s.max = max
	s.waiters = newWaitQueue(osal.IPCPriority)
	s.handle = osal.Sem(k.sems.add(s))

	return s.handle, nil
}

// SemDelete deletes a created semaphore. Its waiters fail with
// osal.ErrDestroyed.
func (k *Kernel) SemDelete(h osal.Sem) error {
	k.enter()
	err := k.semDelete(h, false)
	k.exit()

	return err
}

// SemDeinit deletes an initialised semaphore and releases its block.
func (k *Kernel) SemDeinit(h osal.Sem) error {
	k.enter()
	err := k.semDelete(h, true)
	k.exit()

	return err
}

func (k *Kernel) semDelete(h osal.Sem, static bool) error {
	if err := k.check(false); err != nil {
		return err
	}

	s, ok := k.sems.get(osal.Handle(h))
	if !ok || s.static() != static {
		return osal.ErrParam
	}

	k.wakeAll(&s.waiters, osal.ErrDestroyed)
	k.sems.remove(osal.Handle(h))
	k.discharge(&s.objHeader)

	return nil
}

// SemWait takes one unit, waiting up to timeout ticks for a release.
func (k *Kernel) SemWait(h osal.Sem, timeout osal.Tick) error {
	k.enter()
	err := k.semWait(h, timeout)
	k.exit()

	return err
}

func (k *Kernel) semWait(h osal.Sem, timeout osal.Tick) error {
	if err := k.check(false); err != nil {
		return err
	}

	s, ok := k.sems.get(osal.Handle(h))
	if !ok || !osal.ValidTimeout(timeout) {
		return osal.ErrParam
	}

	if s.count > 0 {
		s.count--
		return nil
	}

	if timeout == osal.NoWait {
		return osal.ErrTimeout
	}

	if err := k.checkTask(); err != nil {
		return err
	}

	return k.block(&waiter{}, &s.waiters, timeout, "sem "+s.name)
}

// SemRelease gives one unit to the most urgent waiter, or adds it to the
// count if nobody waits.
func (k *Kernel) SemRelease(h osal.Sem) error {
	k.enter()
	err := k.semRelease(h, false)
	k.exit()

	return err
}

// SemReleaseAll wakes every waiter. The count does not change.
func (k *Kernel) SemReleaseAll(h osal.Sem) error {
	k.enter()
	err := k.semRelease(h, true)
	k.exit()

	return err
}

func (k *Kernel) semRelease(h osal.Sem, all bool) error {
	if err := k.check(true); err != nil {
		return err
	}

	s, ok := k.sems.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	if all {
		k.wakeAll(&s.waiters, nil)
		return nil
	}

	if w := s.waiters.front(); w != nil {
		k.wake(w, nil)
		return nil
	}

	if s.count == s.max {
		return osal.ErrSemOverflow
	}

	s.count++

	return nil
}

// SemCount returns the count of s.
func (k *Kernel) SemCount(h osal.Sem) (uint32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.sems.get(osal.Handle(h))
	if !ok {
		return 0, osal.ErrParam
	}

	return s.count, nil
}
