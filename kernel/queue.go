package kernel

import "github.com/sarchlab/cosit/osal"

type queueCB struct {
	objHeader

	handle    osal.Queue
	pool      []byte
	lens      []int
	msgSize   int
	head      int
	count     int
	receivers waitQueue
	senders   waitQueue
}

func (q *queueCB) full() bool {
	return q.count == len(q.lens)
}

func (q *queueCB) put(msg []byte) {
	i := (q.head + q.count) % len(q.lens)
	copy(q.pool[i*q.msgSize:(i+1)*q.msgSize], msg)
	q.lens[i] = len(msg)
	q.count++
}

func (q *queueCB) take(buf []byte) int {
	i := q.head
	n := copy(buf, q.pool[i*q.msgSize:i*q.msgSize+q.lens[i]])
	q.head = (q.head + 1) % len(q.lens)
	q.count--

	return n
}

// QueueCreate creates a message queue of maxMsgs messages of up to msgSize
// bytes.
func (k *Kernel) QueueCreate(
	name string,
	msgSize, maxMsgs int,
	order osal.IPCOrder,
) (osal.Queue, error) {
	k.enter()
	q, err := k.queueCreate(nil, name, nil, msgSize, maxMsgs, order)
	k.exit()

	return q, err
}

// QueueInit creates a message queue in caller storage. The pool holds the
// messages and must be at least msgSize*maxMsgs bytes.
func (k *Kernel) QueueInit(
	b osal.Block,
	name string,
	pool []byte,
	msgSize, maxMsgs int,
	order osal.IPCOrder,
) (osal.Queue, error) {
	k.enter()

	blk, ok := blockOf[QueueBlock](b)
	if !ok {
		k.exit()
		return 0, osal.ErrParam
	}

	q, err := k.queueCreate(blk, name, pool, msgSize, maxMsgs, order)
	k.exit()

	return q, err
}

func (k *Kernel) queueCreate(
	blk *QueueBlock,
	name string,
	pool []byte,
	msgSize, maxMsgs int,
	order osal.IPCOrder,
) (osal.Queue, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	if msgSize <= 0 || maxMsgs <= 0 || !k.validOrder(order) {
		return 0, osal.ErrParam
	}

	poolSize := msgSize * maxMsgs
	if poolSize/maxMsgs != msgSize {
		return 0, osal.ErrParam
	}

	var q *queueCB

	if blk != nil {
		if len(pool) < poolSize {
			return 0, osal.ErrParam
		}

		osal.Claim(blk)
		blk.cb = queueCB{}
		q = &blk.cb
		q.block = blk
		q.pool = pool[:poolSize]
	} else {
		mem, err := k.charge(QueueBlockSize + uintptr(poolSize))
		if err != nil {
			return 0, err
		}

		q = &queueCB{}
		q.mem = mem
		q.pool = mem[QueueBlockSize:]
	}

	q.name = name
	q.msgSize = msgSize
	q.lens = make([]int, maxMsgs)
	q.receivers = newWaitQueue(order)
	q.senders = newWaitQueue(order)
	q.handle = osal.Queue(k.queues.add(q))

	return q.handle, nil
}

// QueueDelete deletes a created queue. Blocked senders and receivers fail
// with osal.ErrDestroyed.
func (k *Kernel) QueueDelete(h osal.Queue) error {
	k.enter()
	err := k.queueDelete(h, false)
	k.exit()

	return err
}

// QueueDeinit deletes an initialised queue and releases its block.
func (k *Kernel) QueueDeinit(h osal.Queue) error {
	k.enter()
	err := k.queueDelete(h, true)
	k.exit()

	return err
}

func (k *Kernel) queueDelete(h osal.Queue, static bool) error {
	if err := k.check(false); err != nil {
		return err
	}

	q, ok := k.queues.get(osal.Handle(h))
	if !ok || q.static() != static {
		return osal.ErrParam
	}

	k.wakeAll(&q.receivers, osal.ErrDestroyed)
	k.wakeAll(&q.senders, osal.ErrDestroyed)
	k.queues.remove(osal.Handle(h))
	k.discharge(&q.objHeader)
	q.pool = nil

	return nil
}

// QueueSend copies msg into q without blocking.
func (k *Kernel) QueueSend(h osal.Queue, msg []byte) error {
	k.enter()
	err := k.queueSend(h, msg, osal.NoWait, osal.ErrQueueFull)
	k.exit()

	return err
}

// QueueSendWait copies msg into q, waiting up to timeout ticks for room.
func (k *Kernel) QueueSendWait(h osal.Queue, msg []byte, timeout osal.Tick) error {
	k.enter()
	err := k.queueSend(h, msg, timeout, osal.ErrTimeout)
	k.exit()

	return err
}

func (k *Kernel) queueSend(
	h osal.Queue,
	msg []byte,
	timeout osal.Tick,
	whenFull error,
) error {
	if err := k.check(timeout == osal.NoWait); err != nil {
		return err
	}

	q, ok := k.queues.get(osal.Handle(h))
	if !ok || len(msg) == 0 || len(msg) > q.msgSize ||
		!osal.ValidTimeout(timeout) {
		return osal.ErrParam
	}

	if w := q.receivers.front(); w != nil {
		w.n = copy(w.buf, msg)
		k.wake(w, nil)

		return nil
	}

	if !q.full() {
		q.put(msg)
		return nil
	}

	if timeout == osal.NoWait {
		return whenFull
	}

	if err := k.checkTask(); err != nil {
		return err
	}

	return k.block(&waiter{msg: msg}, &q.senders, timeout, "queue "+q.name)
}

// QueueRecv copies the oldest message into buf, waiting up to timeout ticks
// for one, and returns its length.
func (k *Kernel) QueueRecv(h osal.Queue, buf []byte, timeout osal.Tick) (int, error) {
	k.enter()
	n, err := k.queueRecv(h, buf, timeout)
	k.exit()

	return n, err
}

func (k *Kernel) queueRecv(h osal.Queue, buf []byte, timeout osal.Tick) (int, error) {
	if err := k.check(false); err != nil {
		return 0, err
	}

	q, ok := k.queues.get(osal.Handle(h))
	if !ok || len(buf) < q.msgSize || !osal.ValidTimeout(timeout) {
		return 0, osal.ErrParam
	}

	if q.count > 0 {
		n := q.take(buf)

		if w := q.senders.front(); w != nil {
			q.put(w.msg)
			k.wake(w, nil)
		}

		return n, nil
	}

	if timeout == osal.NoWait {
		return 0, osal.ErrTimeout
	}

	if err := k.checkTask(); err != nil {
		return 0, err
	}

	w := &waiter{buf: buf}
	err := k.block(w, &q.receivers, timeout, "queue "+q.name)

	return w.n, err
}
