package kernel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

var _ = Describe("Static storage", func() {
	var k *Kernel

	BeforeEach(func() {
		var err error
		k, err = New(DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	It("should build objects in caller blocks without touching the heap", func() {
		used := k.Heap().Used

		var blk SemBlock
		s, err := k.SemInit(&blk, "static", 1, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(osal.InUse(&blk)).To(BeTrue())
		Expect(k.Heap().Used).To(Equal(used))

		_, err = k.SemInit(&blk, "again", 1, 1)
		Expect(err).To(MatchError(osal.ErrParam))

		Expect(k.SemDelete(s)).To(MatchError(osal.ErrParam))
		Expect(k.SemDeinit(s)).To(Succeed())
		Expect(osal.InUse(&blk)).To(BeFalse())

		_, err = k.SemInit(&blk, "reused", 0, 1)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should not deinit created objects", func() {
		m, err := k.MutexCreate("heap", 0)
		Expect(err).NotTo(HaveOccurred())

		Expect(k.MutexDeinit(m)).To(MatchError(osal.ErrParam))
		Expect(k.MutexDelete(m)).To(Succeed())
	})

	It("should reject blocks of the wrong kind", func() {
		_, err := k.SemInit(&MutexBlock{}, "wrong", 0, 1)
		Expect(err).To(MatchError(osal.ErrParam))

		var nilBlock *EventBlock
		_, err = k.EventInit(nilBlock, "nil", 0)
		Expect(err).To(MatchError(osal.ErrParam))
	})

	It("should use caller buffers for mailboxes and queues", func() {
		var mbBlk MailboxBlock
		slots := make([]uint32, 2)

		mb, err := k.MailboxInit(&mbBlk, "mb", slots, osal.IPCFIFO)
		Expect(err).NotTo(HaveOccurred())
		Expect(k.MailboxSend(mb, 7)).To(Succeed())
		Expect(slots[0]).To(Equal(uint32(7)))
		Expect(k.MailboxDeinit(mb)).To(Succeed())

		var qBlk QueueBlock
		_, err = k.QueueInit(&qBlk, "small", make([]byte, 7), 4, 2, osal.IPCFIFO)
		Expect(err).To(MatchError(osal.ErrParam))

		pool := make([]byte, 8)
		q, err := k.QueueInit(&qBlk, "q", pool, 4, 2, osal.IPCFIFO)
		Expect(err).NotTo(HaveOccurred())
		Expect(k.QueueSend(q, []byte("ok"))).To(Succeed())
		Expect(string(pool[:2])).To(Equal("ok"))
		Expect(k.QueueDeinit(q)).To(Succeed())
	})

	It("should keep timers and work in caller blocks", func() {
		var tBlk TimerBlock
		t, err := k.TimerInit(&tBlk, "t", func(any) {}, nil, 5, 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(k.TimerDelete(t)).To(MatchError(osal.ErrParam))
		Expect(k.TimerDeinit(t)).To(Succeed())

		var wBlk WorkBlock
		w, err := k.WorkInit(&wBlk, func(any) {}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(osal.InUse(&wBlk)).To(BeTrue())
		Expect(k.WorkDelete(w)).To(Succeed())
		Expect(osal.InUse(&wBlk)).To(BeFalse())
	})

	It("should release a task block when the task ends", func() {
		var blk TaskBlock
		stack := make([]byte, 256)

		var runs int

		err := k.Run(func(any) {
			attr := osal.DefaultTaskAttr()
			attr.Name = "static"
			attr.StackSize = 256
			attr.Priority = 1

			for i := 0; i < 2; i++ {
				_, err := k.TaskInit(&blk, func(any) { runs++ }, nil, &attr, stack)
				Expect(err).NotTo(HaveOccurred())
			}

			attr.StackSize = 512
			_, err := k.TaskInit(&blk, func(any) {}, nil, &attr, stack)
			Expect(err).To(MatchError(osal.ErrParam))

			attr.StackSize = 256
			attr.Priority = 50
			t, err := k.TaskInit(&blk, func(any) {}, nil, &attr, stack)
			Expect(err).NotTo(HaveOccurred())
			Expect(k.TaskDelete(t)).To(MatchError(osal.ErrParam))
			Expect(k.TaskDeinit(t)).To(Succeed())
			Expect(osal.InUse(&blk)).To(BeFalse())
		}, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(Equal(2))
	})
})

var _ = Describe("Heap accounting", func() {
	It("should charge created objects to the heap", func() {
		k, err := New(DefaultConfig().WithHeapSize(4096).WithSysWorkQueue(false, 0))
		Expect(err).NotTo(HaveOccurred())

		before := k.Heap().Used

		s, err := k.SemCreate("s", 0, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(k.Heap().Used).To(BeNumerically(">=", before+int(SemBlockSize)))

		Expect(k.SemDelete(s)).To(Succeed())
		Expect(k.Heap().Used).To(Equal(before))

		_, err = k.MailboxCreate("huge", 4096, osal.IPCFIFO)
		Expect(err).To(MatchError(osal.ErrNoMem))
	})
})
