package osaltest

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

func describeMailbox(b Backend) {
	Context("mailbox", func() {
		It("should deliver values in order and report full and empty", func() {
			var got []uint32
			var full, empty, badSize error

			err := boot(b, func(k osal.Kernel) {
				mb := must1(k.MailboxCreate("mb", 2, osal.IPCFIFO))

				must(k.MailboxSend(mb, 1))
				must(k.MailboxSend(mb, 2))
				full = k.MailboxSend(mb, 3)

				got = append(got, must1(k.MailboxRecv(mb, osal.NoWait)))
				must(k.MailboxSend(mb, 4))
				got = append(got, must1(k.MailboxRecv(mb, osal.NoWait)))
				got = append(got, must1(k.MailboxRecv(mb, osal.NoWait)))
				_, empty = k.MailboxRecv(mb, osal.NoWait)

				_, badSize = k.MailboxCreate("bad", 0, osal.IPCFIFO)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(full).To(MatchError(osal.ErrMailboxFull))
			Expect(got).To(Equal([]uint32{1, 2, 4}))
			Expect(empty).To(MatchError(osal.ErrTimeout))
			Expect(badSize).To(MatchError(osal.ErrParam))
		})

		DescribeTable("should order blocked receivers",
			func(order osal.IPCOrder, first, second uint32) {
				var early, late uint32
				var createErr error

				err := boot(b, func(k osal.Kernel) {
					var mb osal.Mailbox

					mb, createErr = k.MailboxCreate("mb", 1, order)
					if createErr != nil {
						return
					}

					task(k, "early", below(4), func() {
						early = must1(k.MailboxRecv(mb, osal.WaitForever))
					})

					task(k, "late", below(2), func() {
						sleep(k, 1)
						late = must1(k.MailboxRecv(mb, osal.WaitForever))
					})

					sleep(k, 5)
					must(k.MailboxSend(mb, 10))
					must(k.MailboxSend(mb, 20))
					sleep(k, 1)
				})

				Expect(err).NotTo(HaveOccurred())
				if osal.StatusOf(createErr) == osal.ErrParam {
					Skip("backend does not order by priority")
				}

				Expect(createErr).NotTo(HaveOccurred())
				Expect(early).To(Equal(first))
				Expect(late).To(Equal(second))
			},
			Entry("first come first served", osal.IPCFIFO, uint32(10), uint32(20)),
			Entry("by priority", osal.IPCPriority, uint32(20), uint32(10)),
		)

		It("should fail receivers of a deleted mailbox", func() {
			var recvErr error

			err := boot(b, func(k osal.Kernel) {
				mb := must1(k.MailboxCreate("mb", 1, osal.IPCFIFO))

				task(k, "receiver", above(2), func() {
					_, recvErr = k.MailboxRecv(mb, osal.WaitForever)
				})

				must(k.MailboxDelete(mb))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(recvErr).To(MatchError(osal.ErrDestroyed))
		})
	})
}

func describeQueue(b Backend) {
	Context("message queue", func() {
		It("should check sizes and report a full queue", func() {
			var full, fullWait, tooLong, empty, smallBuf error

			err := boot(b, func(k osal.Kernel) {
				q := must1(k.QueueCreate("q", 4, 2, osal.IPCFIFO))

				must(k.QueueSend(q, []byte("ab")))
				must(k.QueueSend(q, []byte("cdef")))
				full = k.QueueSend(q, []byte("x"))
				fullWait = k.QueueSendWait(q, []byte("x"), osal.NoWait)
				tooLong = k.QueueSend(q, []byte("ghijk"))
				empty = k.QueueSend(q, nil)
				_, smallBuf = k.QueueRecv(q, make([]byte, 3), osal.NoWait)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(full).To(MatchError(osal.ErrQueueFull))
			Expect(fullWait).To(MatchError(osal.ErrTimeout))
			Expect(tooLong).To(MatchError(osal.ErrParam))
			Expect(empty).To(MatchError(osal.ErrParam))
			Expect(smallBuf).To(MatchError(osal.ErrParam))
		})

		It("should admit a blocked sender when room frees up", func() {
			var log recorder
			var msgs []string
			var empty error

			err := boot(b, func(k osal.Kernel) {
				q := must1(k.QueueCreate("q", 4, 2, osal.IPCFIFO))
				must(k.QueueSend(q, []byte("ab")))
				must(k.QueueSend(q, []byte("cdef")))

				task(k, "sender", above(2), func() {
					err := k.QueueSendWait(q, []byte("zz"), osal.WaitForever)
					log.add("sender: %v", osal.StatusOf(err))
				})

				buf := make([]byte, 4)
				for i := 0; i < 3; i++ {
					n := must1(k.QueueRecv(q, buf, osal.NoWait))
					msgs = append(msgs, string(buf[:n]))
					log.add("received %s", buf[:n])
				}

				_, empty = k.QueueRecv(q, buf, osal.NoWait)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]string{"ab", "cdef", "zz"}))
			Expect(empty).To(MatchError(osal.ErrTimeout))
			Expect(log.list()[:2]).To(Equal(
				[]string{"sender: ok", "received ab"}))
		})

		It("should hand a message straight to a waiting receiver", func() {
			var got string

			err := boot(b, func(k osal.Kernel) {
				q := must1(k.QueueCreate("q", 8, 1, osal.IPCFIFO))

				task(k, "receiver", above(2), func() {
					buf := make([]byte, 8)
					n := must1(k.QueueRecv(q, buf, 20))
					got = string(buf[:n])
				})

				must(k.QueueSend(q, []byte("hello")))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("hello"))
		})

		It("should fail blocked tasks of a deleted queue", func() {
			var recvErr, sendErr error

			err := boot(b, func(k osal.Kernel) {
				empty := must1(k.QueueCreate("empty", 4, 1, osal.IPCFIFO))
				full := must1(k.QueueCreate("full", 4, 1, osal.IPCFIFO))
				must(k.QueueSend(full, []byte("x")))

				task(k, "receiver", above(2), func() {
					_, recvErr = k.QueueRecv(empty, make([]byte, 4),
						osal.WaitForever)
				})

				task(k, "sender", above(2), func() {
					sendErr = k.QueueSendWait(full, []byte("y"), osal.WaitForever)
				})

				must(k.QueueDelete(empty))
				must(k.QueueDelete(full))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(recvErr).To(MatchError(osal.ErrDestroyed))
			Expect(sendErr).To(MatchError(osal.ErrDestroyed))
		})
	})
}
