package osaltest

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

func describeWorkQueue(b Backend) {
	Context("work queue", func() {
		It("should run submitted work in order and honour delays", func() {
			var log recorder
			var cancelled, again error
			var workerPrio uint8

			err := boot(b, func(k osal.Kernel) {
				start := k.TickGet()
				wq := must1(k.WorkQueueCreate("wq", 1024, below(2)))

				work := func(name string) osal.Work {
					return must1(k.WorkCreate(func(any) {
						log.add("%s@%d", name, k.TickGet()-start)
						workerPrio = must1(k.TaskPriority(k.TaskSelf()))
					}, nil))
				}

				w1, w2, w3 := work("w1"), work("w2"), work("w3")
				must(k.WorkSubmit(wq, w1, 0))
				must(k.WorkSubmit(wq, w2, 0))
				must(k.WorkSubmit(wq, w3, 5))

				cancelled = k.WorkCancel(wq, w2)
				again = k.WorkCancel(wq, w2)

				sleep(k, 10)
				must(k.WorkQueueDestroy(wq))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{"w1@0", "w3@5"}))
			Expect(cancelled).NotTo(HaveOccurred())
			Expect(again).To(MatchError(osal.ErrWorkNotFound))
			Expect(workerPrio).To(Equal(below(2)))
		})

		It("should refuse to cancel running work or destroy its own queue", func() {
			var running, destroy error

			err := boot(b, func(k osal.Kernel) {
				wq := must1(k.WorkQueueCreate("wq", 1024, above(2)))

				var w osal.Work
				w = must1(k.WorkCreate(func(any) {
					running = k.WorkCancel(wq, w)
					destroy = k.WorkQueueDestroy(wq)
				}, nil))

				must(k.WorkSubmit(wq, w, 0))
				must(k.WorkQueueDestroy(wq))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(running).To(MatchError(osal.ErrWorkRunning))
			Expect(destroy).To(MatchError(osal.ErrPerm))
		})

		It("should not move pending work to another queue", func() {
			var moved error

			err := boot(b, func(k osal.Kernel) {
				wq1 := must1(k.WorkQueueCreate("wq1", 1024, below(2)))
				wq2 := must1(k.WorkQueueCreate("wq2", 1024, below(2)))
				w := must1(k.WorkCreate(func(any) {}, nil))

				must(k.WorkSubmit(wq1, w, 50))
				moved = k.WorkSubmit(wq2, w, 0)
				must(k.WorkCancel(wq1, w))
				must(k.WorkSubmit(wq2, w, 0))
				sleep(k, 1)

				must(k.WorkQueueDestroy(wq1))
				must(k.WorkQueueDestroy(wq2))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(MatchError(osal.ErrParam))
		})

		It("should drop pending work of a destroyed queue", func() {
			var log recorder
			var stale error

			err := boot(b, func(k osal.Kernel) {
				wq := must1(k.WorkQueueCreate("wq", 1024, below(2)))
				w := must1(k.WorkCreate(func(any) { log.add("ran") }, nil))

				must(k.WorkSubmit(wq, w, 3))
				must(k.WorkQueueDestroy(wq))
				sleep(k, 10)

				stale = k.WorkSubmit(wq, w, 0)
				must(k.WorkDelete(w))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(BeEmpty())
			Expect(stale).To(MatchError(osal.ErrParam))
		})

		It("should run work on the system queue", func() {
			var log recorder

			err := boot(b, func(k osal.Kernel) {
				w := must1(k.WorkCreate(func(arg any) {
					log.add("system %v", arg)
				}, 42))

				must(k.WorkDo(w, 2))
				sleep(k, 5)
				log.add("main")
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{"system 42", "main"}))
		})

		It("should reject work without a function", func() {
			var noFn error

			err := boot(b, func(k osal.Kernel) {
				_, noFn = k.WorkCreate(nil, nil)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(noFn).To(MatchError(osal.ErrParam))
		})
	})
}
