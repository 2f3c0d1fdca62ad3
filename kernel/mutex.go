package kernel

import "github.com/sarchlab/cosit/osal"

const maxMutexNest = 1<<16 - 1

type mutexCB struct {
	objHeader

	handle  osal.Mutex
	nest    bool
	owner   *tcb
	count   uint32
	waiters waitQueue
}

// MutexCreate creates a mutex.
func (k *Kernel) MutexCreate(name string, opts osal.MutexOption) (osal.Mutex, error) {
	k.enter()
	m, err := k.mutexCreate(nil, name, opts)
	k.exit()

	return m, err
}

// MutexInit creates a mutex in caller storage.
func (k *Kernel) MutexInit(
	b osal.Block,
	name string,
	opts osal.MutexOption,
) (osal.Mutex, error) {
	k.enter()

	blk, ok := blockOf[MutexBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	m, err := k.mutexCreate(blk, name, opts)
	k.exit()

	return m, err
}

func (k *Kernel) mutexCreate(
	blk *MutexBlock,
	name string,
	opts osal.MutexOption,
) (osal.Mutex, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	if opts&^osal.MutexNest != 0 {
		return 0, osal.ErrParam
	}

	var m *mutexCB

	if blk != nil {
		osal.Claim(blk)
		blk.cb = mutexCB{}
		m = &blk.cb
		m.block = blk
	} else {
		mem, err := k.charge(MutexBlockSize)
		if err != nil {
			return 0, err
		}

		m = &mutexCB{}
		m.mem = mem
	}

	m.name = name
	m.nest = opts&osal.MutexNest != 0
	m.waiters = newWaitQueue(osal.IPCPriority)
	m.handle = osal.Mutex(k.mutexes.add(m))

	return m.handle, nil
}

// MutexDelete deletes a created mutex. Its waiters fail with
// osal.ErrDestroyed.
func (k *Kernel) MutexDelete(h osal.Mutex) error {
	k.enter()
	err := k.mutexDelete(h, false)
	k.exit()

	return err
}

// MutexDeinit deletes an initialised mutex and releases its block.
func (k *Kernel) MutexDeinit(h osal.Mutex) error {
	k.enter()
	err := k.mutexDelete(h, true)
	k.exit()

	return err
}

func (k *Kernel) mutexDelete(h osal.Mutex, static bool) error {
	if err := k.check(false); err != nil {
		return err
	}

	m, ok := k.mutexes.get(osal.Handle(h))
	if !ok || m.static() != static {
		return osal.ErrParam
	}

	k.wakeAll(&m.waiters, osal.ErrDestroyed)

	if owner := m.owner; owner != nil {
		k.disown(owner, m)
		k.updatePriority(owner)
	}

	k.mutexes.remove(osal.Handle(h))
	k.discharge(&m.objHeader)

	return nil
}

// MutexLock locks m, waiting up to timeout ticks for its owner to unlock it.
func (k *Kernel) MutexLock(h osal.Mutex, timeout osal.Tick) error {
	k.enter()
	err := k.mutexLock(h, timeout)
	k.exit()

	return err
}

func (k *Kernel) mutexLock(h osal.Mutex, timeout osal.Tick) error {
	if err := k.checkTask(); err != nil {
		return err
	}

	m, ok := k.mutexes.get(osal.Handle(h))
	if !ok || !osal.ValidTimeout(timeout) {
		return osal.ErrParam
	}

	self := k.current

	switch {
	case m.owner == nil:
		k.acquire(m, self)
		return nil
	case m.owner == self && !m.nest:
		return osal.ErrMutexNesting
	case m.owner == self && m.count == maxMutexNest:
		return osal.ErrMutexOverflow
	case m.owner == self:
		m.count++
		return nil
	case timeout == osal.NoWait:
		return osal.ErrTimeout
	}

	return k.block(&waiter{mutex: m}, &m.waiters, timeout, "mutex "+m.name)
}

// MutexUnlock unlocks m. When the lock count drops to zero the mutex passes
// to its most urgent waiter.
func (k *Kernel) MutexUnlock(h osal.Mutex) error {
	k.enter()
	err := k.mutexUnlock(h)
	k.exit()

	return err
}

func (k *Kernel) mutexUnlock(h osal.Mutex) error {
	if err := k.checkTask(); err != nil {
		return err
	}

	m, ok := k.mutexes.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	if m.owner != k.current {
		return osal.ErrMutexNotOwner
	}

	m.count--
	if m.count > 0 {
		return nil
	}

	k.handOff(m)

	return nil
}

func (k *Kernel) acquire(m *mutexCB, t *tcb) {
	m.owner = t
	m.count = 1
	t.owned = append(t.owned, m)
}

func (k *Kernel) disown(t *tcb, m *mutexCB) {
	for i, o := range t.owned {
		if o == m {
			t.owned = append(t.owned[:i], t.owned[i+1:]...)
			break
		}
	}

	m.owner = nil
	m.count = 0
}

// handOff releases m completely and gives it to its most urgent waiter.
func (k *Kernel) handOff(m *mutexCB) {
	prev := m.owner
	k.disown(prev, m)

	if w := m.waiters.front(); w != nil {
		k.acquire(m, w.t)
		k.wake(w, nil)
		k.updatePriority(w.t)
	}

	k.updatePriority(prev)
}
