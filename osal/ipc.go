package osal

// IPCOrder decides which blocked task a mailbox or message queue serves
// first.
type IPCOrder uint8

// IPC orders.
const (
	IPCFIFO IPCOrder = iota
	IPCPriority
)

// Mailboxes manages fixed-capacity mailboxes of single words.
type Mailboxes interface {
	MailboxCreate(name string, size int, order IPCOrder) (Mailbox, error)

	// MailboxInit creates a mailbox whose ring is buf.
	MailboxInit(
		b Block,
		name string,
		buf []uint32,
		order IPCOrder,
	) (Mailbox, error)
	MailboxDelete(mb Mailbox) error
	MailboxDeinit(mb Mailbox) error

	// MailboxSend never blocks. It fails with ErrMailboxFull if the mailbox
	// is full.
	MailboxSend(mb Mailbox, value uint32) error
	MailboxRecv(mb Mailbox, timeout Tick) (uint32, error)
}

// Queues manages message queues of fixed maximum size messages.
type Queues interface {
	QueueCreate(
		name string,
		msgSize, maxMsgs int,
		order IPCOrder,
	) (Queue, error)

	// QueueInit creates a message queue that stores its messages in pool.
	QueueInit(
		b Block,
		name string,
		pool []byte,
		msgSize, maxMsgs int,
		order IPCOrder,
	) (Queue, error)
	QueueDelete(q Queue) error
	QueueDeinit(q Queue) error

	// QueueSend never blocks. It fails with ErrQueueFull if the queue is full.
	QueueSend(q Queue, msg []byte) error

	// QueueSendWait blocks while the queue is full.
	QueueSendWait(q Queue, msg []byte, timeout Tick) error

	// QueueRecv copies the oldest message into buf, which must hold at least
	// the message size, and returns its length.
	QueueRecv(q Queue, buf []byte, timeout Tick) (int, error)
}
