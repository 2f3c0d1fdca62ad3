package osaltest

import (
	"unsafe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

func describeMemory(b Backend) {
	Context("memory", func() {
		It("should allocate and free", func() {
			var size, zeroed int
			var copied string
			var double, foreign, freeNil, huge error

			err := boot(b, func(k osal.Kernel) {
				p := must1(k.Malloc(64))
				size = len(p)
				must(k.Free(p))
				double = k.Free(p)
				foreign = k.Free(make([]byte, 8))
				freeNil = k.Free(nil)

				z := must1(k.Calloc(4, 8))
				for _, v := range z {
					if v == 0 {
						zeroed++
					}
				}
				must(k.Free(z))

				r := must1(k.Malloc(4))
				copy(r, "abcd")
				r = must1(k.Realloc(r, 128))
				copied = string(r[:4])
				must(k.Free(r))

				_, huge = k.Malloc(1 << 40)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(size).To(Equal(64))
			Expect(double).To(MatchError(osal.ErrMemNotOwned))
			Expect(foreign).To(MatchError(osal.ErrMemNotOwned))
			Expect(freeNil).NotTo(HaveOccurred())
			Expect(zeroed).To(Equal(32))
			Expect(copied).To(Equal("abcd"))
			Expect(huge).To(MatchError(osal.ErrNoMem))
		})

		It("should honour alignment", func() {
			var addr uintptr
			var badAlign error

			err := boot(b, func(k osal.Kernel) {
				p := must1(k.MallocAlign(24, 64))
				addr = uintptr(unsafe.Pointer(&p[0]))
				must(k.Free(p))

				_, badAlign = k.MallocAlign(8, 3)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(addr % 64).To(BeZero())
			Expect(badAlign).To(MatchError(osal.ErrParam))
		})
	})
}

func describeInterrupts(b Backend) {
	Context("interrupts", func() {
		It("should allow only non-blocking calls from an interrupt", func() {
			var log recorder
			var value uint32
			var queued int

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 1))
				mb := must1(k.MailboxCreate("mb", 1, osal.IPCFIFO))
				q := must1(k.QueueCreate("q", 4, 2, osal.IPCFIFO))
				self := k.TaskSelf()

				b.Interrupt(k, 2, func() {
					status := func(name string, err error) {
						log.add("%s: %v", name, osal.StatusOf(err))
					}

					status("sem wait", k.SemWait(s, 10))
					_, err := k.TaskSleep(1)
					status("sleep", err)
					_, err = k.MutexCreate("m", 0)
					status("mutex create", err)
					_, err = k.TaskPriority(self)
					status("task priority", err)
					_, err = k.TaskName(self)
					status("task name", err)
					log.add("self: %d, find: %d", k.TaskSelf(), k.TaskFind("main"))
					status("mailbox send", k.MailboxSend(mb, 7))
					status("queue send", k.QueueSendWait(q, []byte("isr"), osal.NoWait))
					status("queue send wait", k.QueueSendWait(q, []byte("isr"), 5))
					status("sem release", k.SemRelease(s))
				})

				must(k.SemWait(s, osal.WaitForever))
				log.add("woke")

				value = must1(k.MailboxRecv(mb, osal.NoWait))
				queued = must1(k.QueueRecv(q, make([]byte, 4), osal.NoWait))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{
				"sem wait: not allowed in interrupt context",
				"sleep: not allowed in interrupt context",
				"mutex create: not allowed in interrupt context",
				"task priority: not allowed in interrupt context",
				"task name: not allowed in interrupt context",
				"self: 0, find: 0",
				"mailbox send: ok",
				"queue send: ok",
				"queue send wait: not allowed in interrupt context",
				"sem release: ok",
				"woke",
			}))
			Expect(value).To(Equal(uint32(7)))
			Expect(queued).To(Equal(3))
		})
	})
}

func describeHandles(b Backend) {
	Context("handles", func() {
		It("should reject handles of deleted objects", func() {
			var staleSem, staleMutex, staleTimer, zero error
			var reused osal.Sem
			var first osal.Sem

			err := boot(b, func(k osal.Kernel) {
				first = must1(k.SemCreate("s", 0, 1))
				must(k.SemDelete(first))
				staleSem = k.SemRelease(first)

				reused = must1(k.SemCreate("s", 0, 1))

				m := must1(k.MutexCreate("m", 0))
				must(k.MutexDelete(m))
				staleMutex = k.MutexLock(m, osal.NoWait)

				t := must1(k.TimerCreate("t", func(any) {}, nil, 1, 0, 0))
				must(k.TimerDelete(t))
				staleTimer = k.TimerStart(t)

				zero = k.SemRelease(0)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(staleSem).To(MatchError(osal.ErrParam))
			Expect(staleMutex).To(MatchError(osal.ErrParam))
			Expect(staleTimer).To(MatchError(osal.ErrParam))
			Expect(zero).To(MatchError(osal.ErrParam))
			Expect(reused).NotTo(Equal(first))
		})
	})
}
