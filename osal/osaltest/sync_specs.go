package osaltest

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

func describeMutex(b Backend) {
	Context("mutex", func() {
		It("should hand a released mutex to its waiter", func() {
			var log recorder
			var nestErr, notOwner error
			var boosted, restored uint8

			err := boot(b, func(k osal.Kernel) {
				m := must1(k.MutexCreate("m", 0))

				must(k.MutexLock(m, osal.WaitForever))
				nestErr = k.MutexLock(m, osal.WaitForever)

				task(k, "B", above(2), func() {
					err := k.MutexLock(m, osal.WaitForever)
					log.add("B lock: %v", osal.StatusOf(err))
					notOwner = k.MutexUnlock(osal.Mutex(0))
					must(k.MutexUnlock(m))
				})

				boosted = must1(k.TaskPriority(k.TaskSelf()))
				log.add("main unlock")
				must(k.MutexUnlock(m))
				restored = must1(k.TaskPriority(k.TaskSelf()))
				log.add("main done")
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(nestErr).To(MatchError(osal.ErrMutexNesting))
			Expect(notOwner).To(MatchError(osal.ErrParam))
			Expect(boosted).To(Equal(above(2)))
			Expect(restored).To(Equal(mainPrio))
			Expect(log.list()).To(Equal(
				[]string{"main unlock", "B lock: ok", "main done"}))
		})

		It("should count nested locks", func() {
			var second, notOwner, stillHeld error

			err := boot(b, func(k osal.Kernel) {
				m := must1(k.MutexCreate("nested", osal.MutexNest))

				must(k.MutexLock(m, osal.NoWait))
				must(k.MutexLock(m, osal.NoWait))
				must(k.MutexUnlock(m))

				task(k, "other", above(2), func() {
					stillHeld = k.MutexLock(m, osal.NoWait)
					notOwner = k.MutexUnlock(m)
				})

				must(k.MutexUnlock(m))
				second = k.MutexUnlock(m)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(stillHeld).To(MatchError(osal.ErrTimeout))
			Expect(notOwner).To(MatchError(osal.ErrMutexNotOwner))
			Expect(second).To(MatchError(osal.ErrMutexNotOwner))
		})

		It("should lend the priority of a waiter to the owner", func() {
			var log recorder
			var whileBlocked, afterRelease uint8

			err := boot(b, func(k osal.Kernel) {
				m := must1(k.MutexCreate("shared", 0))

				low := task(k, "L", below(4), func() {
					must(k.MutexLock(m, osal.WaitForever))
					log.add("L lock")
					sleep(k, 10)
					log.add("L unlock")
					must(k.MutexUnlock(m))
					afterRelease = must1(k.TaskPriority(k.TaskSelf()))
				})

				task(k, "H", below(2), func() {
					sleep(k, 1)
					err := k.MutexLock(m, 10)
					log.add("H lock: %v", osal.StatusOf(err))
				})

				sleep(k, 5)
				whileBlocked = must1(k.TaskPriority(low))
				sleep(k, 10)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(whileBlocked).To(Equal(below(2)))
			Expect(afterRelease).To(Equal(below(4)))
			Expect(log.list()).To(Equal(
				[]string{"L lock", "L unlock", "H lock: ok"}))
		})

		It("should fail waiters of a deleted mutex", func() {
			var waitErr, again error

			err := boot(b, func(k osal.Kernel) {
				m := must1(k.MutexCreate("doomed", 0))
				must(k.MutexLock(m, osal.NoWait))

				task(k, "waiter", above(2), func() {
					waitErr = k.MutexLock(m, osal.WaitForever)
				})

				must(k.MutexDelete(m))
				again = k.MutexUnlock(m)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(waitErr).To(MatchError(osal.ErrDestroyed))
			Expect(again).To(MatchError(osal.ErrParam))
		})
	})
}

func describeSem(b Backend) {
	Context("semaphore", func() {
		It("should time out a wait", func() {
			var waitErr error
			var elapsed osal.Tick

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 1))

				start := k.TickGet()
				waitErr = k.SemWait(s, 10)
				elapsed = k.TickGet() - start
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(waitErr).To(MatchError(osal.ErrTimeout))
			Expect(elapsed).To(BeNumerically(">=", 10))
		})

		It("should serve waiters in priority order", func() {
			var log recorder

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 2))

				task(k, "L", below(4), func() {
					must(k.SemWait(s, osal.WaitForever))
					log.add("L")
				})

				task(k, "H", below(2), func() {
					sleep(k, 1)
					must(k.SemWait(s, osal.WaitForever))
					log.add("H")
				})

				sleep(k, 5)
				must(k.SemRelease(s))
				must(k.SemRelease(s))
				log.add("released")
				sleep(k, 1)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{"released", "H", "L"}))
		})

		It("should bound the count", func() {
			var overflow, empty, badInit, badMax error

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 2))

				must(k.SemRelease(s))
				must(k.SemRelease(s))
				overflow = k.SemRelease(s)

				must(k.SemWait(s, osal.NoWait))
				must(k.SemWait(s, osal.NoWait))
				empty = k.SemWait(s, osal.NoWait)

				_, badInit = k.SemCreate("bad", 3, 2)
				_, badMax = k.SemCreate("bad", 0, 0)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(overflow).To(MatchError(osal.ErrSemOverflow))
			Expect(empty).To(MatchError(osal.ErrTimeout))
			Expect(badInit).To(MatchError(osal.ErrParam))
			Expect(badMax).To(MatchError(osal.ErrParam))
		})

		It("should wake every waiter on release all", func() {
			var log recorder
			var after error

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 1))

				for _, name := range []string{"a", "b", "c"} {
					task(k, name, below(2), func() {
						err := k.SemWait(s, osal.WaitForever)
						log.add("%s: %v", name, osal.StatusOf(err))
					})
				}

				sleep(k, 1)
				must(k.SemReleaseAll(s))
				sleep(k, 1)

				after = k.SemWait(s, osal.NoWait)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(ConsistOf("a: ok", "b: ok", "c: ok"))
			Expect(after).To(MatchError(osal.ErrTimeout))
		})

		It("should fail waiters of a deleted semaphore", func() {
			var waitErr error

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 1))

				task(k, "waiter", above(2), func() {
					waitErr = k.SemWait(s, osal.WaitForever)
				})

				must(k.SemDelete(s))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(waitErr).To(MatchError(osal.ErrDestroyed))
		})
	})
}

func describeEvent(b Backend) {
	Context("event", func() {
		It("should wake a waiter on any matching flag", func() {
			var matched, left osal.EventFlag
			var waitErr error

			err := boot(b, func(k osal.Kernel) {
				e := must1(k.EventCreate("e", 0))

				task(k, "W", above(2), func() {
					matched, waitErr = k.EventWait(e, 0b011, osal.WaitForever,
						osal.EventWaitAny)
				})

				must(k.EventRelease(e, 0b110, 0))
				left = must1(k.EventWait(e, 0b110, osal.NoWait, osal.EventWaitAll))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(waitErr).NotTo(HaveOccurred())
			Expect(matched).To(Equal(osal.EventFlag(0b010)))
			Expect(left).To(Equal(osal.EventFlag(0b110)))
		})

		It("should wait for all flags and clear them", func() {
			var matched osal.EventFlag
			var after error

			err := boot(b, func(k osal.Kernel) {
				e := must1(k.EventCreate("e", 0))

				task(k, "W", above(2), func() {
					matched = must1(k.EventWait(e, 0b101, osal.WaitForever,
						osal.EventWaitAll|osal.EventWaitClear))
				})

				must(k.EventRelease(e, 0b001, osal.EventReleaseKeep))
				must(k.EventRelease(e, 0b100, osal.EventReleaseKeep))

				_, after = k.EventWait(e, 0b111, osal.NoWait, osal.EventWaitAny)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(matched).To(Equal(osal.EventFlag(0b101)))
			Expect(after).To(MatchError(osal.ErrTimeout))
		})

		It("should let a clearing waiter consume flags before the next", func() {
			var log recorder

			err := boot(b, func(k osal.Kernel) {
				e := must1(k.EventCreate("e", 0))

				for i, name := range []string{"A", "B"} {
					task(k, name, above(3-uint8(i)), func() {
						must1(k.EventWait(e, 0b1, osal.WaitForever,
							osal.EventWaitAny|osal.EventWaitClear))
						log.add("%s", name)
					})
				}

				must(k.EventRelease(e, 0b1, osal.EventReleaseKeep))
				log.add("released")
				must(k.EventRelease(e, 0b1, osal.EventReleaseKeep))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{"A", "released", "B"}))
		})

		It("should replace the flags unless asked to keep them", func() {
			var gone error
			var kept osal.EventFlag

			err := boot(b, func(k osal.Kernel) {
				e := must1(k.EventCreate("e", 0))

				must(k.EventRelease(e, 0b110, osal.EventReleaseKeep))
				must(k.EventRelease(e, 0b001, 0))

				_, gone = k.EventWait(e, 0b110, osal.NoWait, osal.EventWaitAny)
				kept = must1(k.EventWait(e, 0b001, osal.NoWait, osal.EventWaitAll))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(gone).To(MatchError(osal.ErrTimeout))
			Expect(kept).To(Equal(osal.EventFlag(0b001)))
		})

		It("should reject invalid waits", func() {
			var noBits, both, neither error

			err := boot(b, func(k osal.Kernel) {
				e := must1(k.EventCreate("e", 0))

				_, noBits = k.EventWait(e, 0, osal.NoWait, osal.EventWaitAny)
				_, both = k.EventWait(e, 1, osal.NoWait,
					osal.EventWaitAny|osal.EventWaitAll)
				_, neither = k.EventWait(e, 1, osal.NoWait, osal.EventWaitClear)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(noBits).To(MatchError(osal.ErrParam))
			Expect(both).To(MatchError(osal.ErrParam))
			Expect(neither).To(MatchError(osal.ErrParam))
		})
	})
}
