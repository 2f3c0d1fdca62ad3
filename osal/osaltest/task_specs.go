package osaltest

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

func describeTime(b Backend) {
	Context("tick and time", func() {
		It("should convert ticks to milliseconds and back", func() {
			var roundTrips [][2]osal.Tick
			var forever osal.Tick
			var before, after osal.Tick

			err := boot(b, func(k osal.Kernel) {
				for _, t := range []osal.Tick{0, 1, 7, 100, 1000, 123456} {
					roundTrips = append(roundTrips,
						[2]osal.Tick{t, k.MsToTick(k.TickToMs(t))})
				}

				forever = k.MsToTick(k.TickToMs(osal.WaitForever))

				before = k.TickGet()
				sleep(k, 3)
				after = k.TickGet()
			})

			Expect(err).NotTo(HaveOccurred())
			for _, rt := range roundTrips {
				Expect(rt[1]).To(BeNumerically("~", rt[0], 1))
			}
			Expect(forever).To(Equal(osal.WaitForever))
			Expect(after - before).To(Equal(osal.Tick(3)))
		})
	})
}

func describeTasks(b Backend) {
	Context("tasks", func() {
		It("should find tasks by name", func() {
			var name string
			var found, missing, created osal.Task

			err := boot(b, func(k osal.Kernel) {
				created = task(k, "finder", below(1), func() {})
				found = k.TaskFind("finder")
				missing = k.TaskFind("nobody")
				name = must1(k.TaskName(created))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(Equal(created))
			Expect(missing).To(BeZero())
			Expect(name).To(Equal("finder"))
		})

		It("should reject invalid attributes", func() {
			var nilEntry, badPrio, tinyStack error

			err := boot(b, func(k osal.Kernel) {
				_, nilEntry = k.TaskCreate(nil, nil, nil)

				attr := osal.DefaultTaskAttr()
				attr.Priority = osal.PriorityMax + 1
				_, badPrio = k.TaskCreate(func(any) {}, nil, &attr)

				attr = osal.DefaultTaskAttr()
				attr.StackSize = 16
				_, tinyStack = k.TaskCreate(func(any) {}, nil, &attr)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(nilEntry).To(MatchError(osal.ErrParam))
			Expect(badPrio).To(MatchError(osal.ErrParam))
			Expect(tinyStack).To(MatchError(osal.ErrParam))
		})

		It("should report the remaining ticks of an interrupted sleep", func() {
			var left osal.Tick
			var notSleeping error

			err := boot(b, func(k osal.Kernel) {
				sleeper := task(k, "sleeper", above(2), func() {
					left = must1(k.TaskSleep(100))
				})

				sleep(k, 10)
				must(k.TaskWakeup(sleeper))
				notSleeping = k.TaskWakeup(k.TaskSelf())
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(left).To(Equal(osal.Tick(90)))
			Expect(notSleeping).To(MatchError(osal.ErrTaskNotSleeping))
		})

		It("should treat sleep(0) as a yield", func() {
			var left osal.Tick
			var sleepErr error

			err := boot(b, func(k osal.Kernel) {
				left, sleepErr = k.TaskSleep(0)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(sleepErr).NotTo(HaveOccurred())
			Expect(left).To(BeZero())
		})

		It("should run a task created suspended once resumed", func() {
			var log recorder

			err := boot(b, func(k osal.Kernel) {
				attr := osal.DefaultTaskAttr()
				attr.Name = "later"
				attr.Priority = above(2)
				attr.Options = osal.TaskNoRun

				t := must1(k.TaskCreate(func(any) {
					log.add("later ran")
				}, nil, &attr))

				log.add("before")
				must(k.TaskResume(t))
				log.add("after")
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{"before", "later ran", "after"}))
		})

		It("should keep a task suspended after its wait ends", func() {
			var log recorder

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 1))
				t := task(k, "waiter", above(2), func() {
					must(k.SemWait(s, osal.WaitForever))
					log.add("waiter woke")
				})

				must(k.TaskSuspend(t))
				must(k.SemRelease(s))
				log.add("released")
				must(k.TaskResume(t))
				log.add("resumed")
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal(
				[]string{"released", "waiter woke", "resumed"}))
		})

		It("should pass the CPU between peers on yield", func() {
			var log recorder

			err := boot(b, func(k osal.Kernel) {
				for _, name := range []string{"A", "B"} {
					task(k, name, below(2), func() {
						for i := 0; i < 3; i++ {
							log.add("%s", name)
							must(k.TaskYield())
						}
					})
				}

				sleep(k, 1)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{"A", "B", "A", "B", "A", "B"}))
		})

		It("should change priorities and time slices", func() {
			var prio uint8
			var badPrio, notRR, sliceErr error
			var slice osal.Tick

			err := boot(b, func(k osal.Kernel) {
				rr := task(k, "rr", below(1), func() {})

				attr := osal.DefaultTaskAttr()
				attr.Name = "fifo"
				attr.Priority = below(1)
				attr.Policy = osal.SchedFIFO
				fifo := must1(k.TaskCreate(func(any) {}, nil, &attr))

				must(k.TaskSetPriority(rr, below(3)))
				prio = must1(k.TaskPriority(rr))
				badPrio = k.TaskSetPriority(rr, osal.PriorityMax+1)

				_, notRR = k.TaskTimeSlice(fifo)
				sliceErr = k.TaskSetTimeSlice(rr, 7)
				slice = must1(k.TaskTimeSlice(rr))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(prio).To(Equal(below(3)))
			Expect(badPrio).To(MatchError(osal.ErrParam))
			Expect(notRR).To(MatchError(osal.ErrTaskNotRR))
			Expect(sliceErr).NotTo(HaveOccurred())
			Expect(slice).To(Equal(osal.Tick(7)))
		})

		It("should run deferred functions of an exiting task", func() {
			var log recorder
			var nameErr error

			err := boot(b, func(k osal.Kernel) {
				t := task(k, "quitter", above(2), func() {
					defer log.add("deferred")

					log.add("before exit")
					k.TaskExit(3)
					log.add("after exit")
				})

				_, nameErr = k.TaskName(t)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{"before exit", "deferred"}))
			Expect(nameErr).To(MatchError(osal.ErrParam))
		})

		It("should release the mutexes of a deleted task", func() {
			var lockErr, again error

			err := boot(b, func(k osal.Kernel) {
				m := must1(k.MutexCreate("m", 0))
				s := must1(k.SemCreate("s", 0, 1))
				t := task(k, "holder", below(2), func() {
					must(k.MutexLock(m, osal.WaitForever))
					_ = k.SemWait(s, osal.WaitForever)
				})

				sleep(k, 1)
				must(k.TaskDelete(t))
				lockErr = k.MutexLock(m, osal.NoWait)
				again = k.TaskDelete(t)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(lockErr).NotTo(HaveOccurred())
			Expect(again).To(MatchError(osal.ErrParam))
		})
	})
}
