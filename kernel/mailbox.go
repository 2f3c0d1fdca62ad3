package kernel

import (
	"unsafe"

	"github.com/sarchlab/cosit/osal"
)

type mailboxCB struct {
	objHeader

	handle    osal.Mailbox
	slots     []uint32
	head      int
	count     int
	receivers waitQueue
}

func (k *Kernel) validOrder(order osal.IPCOrder) bool {
	switch order {
	case osal.IPCFIFO:
		return true
	case osal.IPCPriority:
		return !k.cfg.NoPriorityIPC
	default:
		return false
	}
}

// MailboxCreate creates a mailbox of size slots.
func (k *Kernel) MailboxCreate(
	name string,
	size int,
	order osal.IPCOrder,
) (osal.Mailbox, error) {
	k.enter()
	mb, err := k.mailboxCreate(nil, name, size, nil, order)
	k.exit()

	return mb, err
}

// MailboxInit creates a mailbox in caller storage. Every element of buf is a
// slot.
func (k *Kernel) MailboxInit(
	b osal.Block,
	name string,
	buf []uint32,
	order osal.IPCOrder,
) (osal.Mailbox, error) {
	k.enter()

	blk, ok := blockOf[MailboxBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	mb, err := k.mailboxCreate(blk, name, len(buf), buf, order)
	k.exit()

	return mb, err
}

func (k *Kernel) mailboxCreate(
	blk *MailboxBlock,
	name string,
	size int,
	buf []uint32,
	order osal.IPCOrder,
) (osal.Mailbox, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	if size <= 0 || !k.validOrder(order) {
		return 0, osal.ErrParam
	}

	var mb *mailboxCB

	if blk != nil {
		osal.Claim(blk)
		blk.cb = mailboxCB{}
		mb = &blk.cb
		mb.block = blk
		mb.slots = buf
	} else {
		mem, err := k.charge(MailboxBlockSize + uintptr(size)*4)
		if err != nil {
			return 0, err
		}

		mb = &mailboxCB{}
		mb.mem = mem
		mb.slots = unsafe.Slice(
			(*uint32)(unsafe.Pointer(&mem[MailboxBlockSize])), size)
	}

	mb.name = name
	mb.receivers = newWaitQueue(order)
	mb.handle = osal.Mailbox(k.mailboxes.add(mb))

	return mb.handle, nil
}

// MailboxDelete deletes a created mailbox. Its receivers fail with
// osal.ErrDestroyed.
func (k *Kernel) MailboxDelete(h osal.Mailbox) error {
	k.enter()
	err := k.mailboxDelete(h, false)
	k.exit()

	return err
}

// MailboxDeinit deletes an initialised mailbox and releases its block.
func (k *Kernel) MailboxDeinit(h osal.Mailbox) error {
	k.enter()
	err := k.mailboxDelete(h, true)
	k.exit()

	return err
}

func (k *Kernel) mailboxDelete(h osal.Mailbox, static bool) error {
	if err := k.check(false); err != nil {
		return err
	}

	mb, ok := k.mailboxes.get(osal.Handle(h))
	if !ok || mb.static() != static {
		return osal.ErrParam
	}

	k.wakeAll(&mb.receivers, osal.ErrDestroyed)
	k.mailboxes.remove(osal.Handle(h))
	k.discharge(&mb.objHeader)
	mb.slots = nil

	return nil
}

// MailboxSend posts v without blocking.
func (k *Kernel) MailboxSend(h osal.Mailbox, v uint32) error {
	k.enter()
	err := k.mailboxSend(h, v)
	k.exit()

	return err
}

func (k *Kernel) mailboxSend(h osal.Mailbox, v uint32) error {
	if err := k.check(true); err != nil {
		return err
	}

	mb, ok := k.mailboxes.get(osal.Handle(h))
	if !ok {
		return osal.ErrParam
	}

	if w := mb.receivers.front(); w != nil {
		w.value = v
		k.wake(w, nil)

		return nil
	}

	if mb.count == len(mb.slots) {
		return osal.ErrMailboxFull
	}

	mb.slots[(mb.head+mb.count)%len(mb.slots)] = v
	mb.count++

	return nil
}

// MailboxRecv takes the oldest value, waiting up to timeout ticks for one.
func (k *Kernel) MailboxRecv(h osal.Mailbox, timeout osal.Tick) (uint32, error) {
	k.enter()
	v, err := k.mailboxRecv(h, timeout)
	k.exit()

	return v, err
}

func (k *Kernel) mailboxRecv(h osal.Mailbox, timeout osal.Tick) (uint32, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	mb, ok := k.mailboxes.get(osal.Handle(h))
	if !ok || !osal.ValidTimeout(timeout) {
		return 0, osal.ErrParam
	}

	if mb.count > 0 {
		v := mb.slots[mb.head]
		mb.head = (mb.head + 1) % len(mb.slots)
		mb.count--

		return v, nil
	}

	if timeout == osal.NoWait {
		return 0, osal.ErrTimeout
	}

	if err := k.checkTask(); err != nil {
		return 0, err
	}

	w := &waiter{}
	err := k.block(w, &mb.receivers, timeout, "mailbox "+mb.name)

	return w.value, err
}
