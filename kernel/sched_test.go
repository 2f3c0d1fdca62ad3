package kernel

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

type trace struct {
	lock  sync.Mutex
	lines []string
}

func (t *trace) add(format string, args ...any) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

func (t *trace) list() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.lines...)
}

func boot(cfg Config, main func(k *Kernel)) (*Kernel, error) {
	k, err := New(cfg)
	Expect(err).NotTo(HaveOccurred())

	return k, k.Run(func(any) { main(k) }, nil)
}

func start(
	k *Kernel,
	name string,
	prio uint8,
	policy osal.SchedPolicy,
	fn func(),
) osal.Task {
	attr := osal.DefaultTaskAttr()
	attr.Name = name
	attr.Priority = prio
	attr.Policy = policy
	attr.TimeSlice = 3

	t, err := k.TaskCreate(func(any) { fn() }, nil, &attr)
	Expect(err).NotTo(HaveOccurred())

	return t
}

func infoOf(s State, name string) TaskInfo {
	for _, t := range s.Tasks {
		if t.Name == name {
			return t
		}
	}

	Fail("no task named " + name)

	return TaskInfo{}
}

var _ = Describe("Scheduler", func() {
	It("should rotate round-robin peers at the end of their slice", func() {
		var log trace

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			for _, name := range []string{"A", "B"} {
				start(k, name, 8, osal.SchedRR, func() {
					for i := 0; i < 3; i++ {
						log.add("%s@%d", name, k.TickGet())
						Expect(k.Spin(3)).To(Succeed())
					}
				})
			}

			_, _ = k.TaskSleep(100)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log.list()).To(Equal(
			[]string{"A@0", "B@3", "A@6", "B@9", "A@12", "B@15"}))
	})

	It("should not rotate FIFO peers", func() {
		var log trace

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			for _, name := range []string{"A", "B"} {
				start(k, name, 8, osal.SchedFIFO, func() {
					log.add("%s start@%d", name, k.TickGet())
					Expect(k.Spin(10)).To(Succeed())
					log.add("%s end@%d", name, k.TickGet())
				})
			}

			_, _ = k.TaskSleep(100)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log.list()).To(Equal([]string{
			"A start@0", "A end@10", "B start@10", "B end@20",
		}))
	})

	It("should run real-time tasks before fair ones", func() {
		var log trace

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			start(k, "fair", 0, osal.SchedFair, func() {
				log.add("fair@%d", k.TickGet())
			})
			start(k, "rt", osal.PriorityMax, osal.SchedFIFO, func() {
				Expect(k.Spin(20)).To(Succeed())
				log.add("rt@%d", k.TickGet())
			})

			_, _ = k.TaskSleep(100)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log.list()).To(Equal([]string{"rt@20", "fair@20"}))
	})

	It("should share the CPU among fair tasks by weight", func() {
		var heavy, light TaskInfo

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			for _, t := range []struct {
				name string
				prio uint8
			}{{"heavy", 10}, {"light", 50}} {
				start(k, t.name, t.prio, osal.SchedFair, func() {
					for {
						_ = k.Spin(1)
					}
				})
			}

			_, _ = k.TaskSleep(400)

			s := k.Snapshot()
			heavy, light = infoOf(s, "heavy"), infoOf(s, "light")
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(heavy.RunTicks + light.RunTicks).To(BeNumerically("~", 400, 1))
		Expect(light.RunTicks).To(BeNumerically(">", 0))
		Expect(heavy.RunTicks).To(BeNumerically(">", light.RunTicks))
		Expect(heavy.Policy).To(Equal("fair"))
	})

	It("should propagate inherited priority along a chain of owners", func() {
		var low, mid uint8
		var lowAfter uint8

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			m1, _ := k.MutexCreate("m1", 0)
			m2, _ := k.MutexCreate("m2", 0)

			l := start(k, "L", 30, osal.SchedFIFO, func() {
				Expect(k.MutexLock(m1, osal.WaitForever)).To(Succeed())
				_, _ = k.TaskSleep(100)
				Expect(k.MutexUnlock(m1)).To(Succeed())
				_, _ = k.TaskSleep(50)
			})

			m := start(k, "M", 20, osal.SchedFIFO, func() {
				_, _ = k.TaskSleep(1)
				Expect(k.MutexLock(m2, osal.WaitForever)).To(Succeed())
				Expect(k.MutexLock(m1, osal.WaitForever)).To(Succeed())
				Expect(k.MutexUnlock(m1)).To(Succeed())
				Expect(k.MutexUnlock(m2)).To(Succeed())
			})

			start(k, "H", 10, osal.SchedFIFO, func() {
				_, _ = k.TaskSleep(2)
				Expect(k.MutexLock(m2, osal.WaitForever)).To(Succeed())
				Expect(k.MutexUnlock(m2)).To(Succeed())
			})

			_, _ = k.TaskSleep(5)
			low, _ = k.TaskPriority(l)
			mid, _ = k.TaskPriority(m)

			_, _ = k.TaskSleep(100)
			lowAfter, _ = k.TaskPriority(l)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(low).To(Equal(uint8(10)))
		Expect(mid).To(Equal(uint8(10)))
		Expect(lowAfter).To(Equal(uint8(30)))
	})

	It("should restore the owner's priority when a waiter times out", func() {
		var during, after uint8
		var lockErr error

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			mu, _ := k.MutexCreate("m", 0)

			l := start(k, "L", 30, osal.SchedFIFO, func() {
				Expect(k.MutexLock(mu, osal.WaitForever)).To(Succeed())
				_, _ = k.TaskSleep(50)
				Expect(k.MutexUnlock(mu)).To(Succeed())
			})

			start(k, "H", 10, osal.SchedFIFO, func() {
				_, _ = k.TaskSleep(1)
				lockErr = k.MutexLock(mu, 10)
			})

			_, _ = k.TaskSleep(5)
			during, _ = k.TaskPriority(l)
			_, _ = k.TaskSleep(15)
			after, _ = k.TaskPriority(l)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(lockErr).To(MatchError(osal.ErrTimeout))
		Expect(during).To(Equal(uint8(10)))
		Expect(after).To(Equal(uint8(30)))
	})

	It("should boost a fair owner into the real-time class", func() {
		var boosted, restored TaskInfo

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			mu, _ := k.MutexCreate("m", 0)

			start(k, "fair", 40, osal.SchedFair, func() {
				Expect(k.MutexLock(mu, osal.WaitForever)).To(Succeed())
				_, _ = k.TaskSleep(20)
				Expect(k.MutexUnlock(mu)).To(Succeed())
				_, _ = k.TaskSleep(100)
			})

			start(k, "rt", 50, osal.SchedFIFO, func() {
				_, _ = k.TaskSleep(1)
				Expect(k.MutexLock(mu, osal.WaitForever)).To(Succeed())
				Expect(k.MutexUnlock(mu)).To(Succeed())
			})

			_, _ = k.TaskSleep(5)
			boosted = infoOf(k.Snapshot(), "fair")
			_, _ = k.TaskSleep(20)
			restored = infoOf(k.Snapshot(), "fair")
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(boosted.Priority).To(Equal(uint8(40)))
		Expect(boosted.Boosted).To(BeTrue())
		Expect(boosted.Owns).To(ConsistOf("m"))
		Expect(restored.Boosted).To(BeFalse())
		Expect(restored.Owns).To(BeEmpty())
	})

	It("should clamp priorities to the configured levels", func() {
		var prio uint8

		_, err := boot(DefaultConfig().WithPriorityLevels(32), func(k *Kernel) {
			Expect(k.TaskSetPriority(k.TaskSelf(), 50)).To(Succeed())
			prio, _ = k.TaskPriority(k.TaskSelf())
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(prio).To(Equal(uint8(31)))
	})

	It("should protect the idle task and workers", func() {
		var idleErr, workerErr, exitRan error
		var after bool

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			idleErr = k.TaskDelete(k.TaskFind("idle"))
			workerErr = k.TaskDelete(k.TaskFind("sysworkq"))

			w, _ := k.WorkCreate(func(any) {
				k.TaskExit(1)
				after = true
			}, nil)
			exitRan = k.WorkDo(w, 0)
			_, _ = k.TaskSleep(1)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(idleErr).To(MatchError(osal.ErrParam))
		Expect(workerErr).To(MatchError(osal.ErrPerm))
		Expect(exitRan).NotTo(HaveOccurred())
		Expect(after).To(BeTrue())
	})

	It("should suspend a task that sleeps forever", func() {
		var state osal.TaskState
		var log trace

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			t := start(k, "sleeper", 3, osal.SchedFIFO, func() {
				_, _ = k.TaskSleep(osal.WaitForever)
				log.add("resumed")
			})

			state, _ = k.TaskState(t)
			Expect(k.TaskResume(t)).To(Succeed())
			log.add("main")
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(osal.TaskSuspended))
		Expect(log.list()).To(Equal([]string{"resumed", "main"}))
	})

	It("should stop the kernel when the main task is deleted", func() {
		var log trace

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			self := k.TaskSelf()

			start(k, "killer", 8, osal.SchedFIFO, func() {
				log.add("killing")
				_ = k.TaskDelete(self)
				log.add("unreachable")
			})

			defer log.add("main deferred")
			_, _ = k.TaskSleep(osal.WaitForever)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(log.list()).To(Equal([]string{"killing", "main deferred"}))
	})
})
