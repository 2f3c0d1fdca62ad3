package kernel

import (
	"bytes"
	"log"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

var _ = Describe("Kernel lifecycle", func() {
	It("should reject invalid configurations", func() {
		_, err := New(DefaultConfig().WithFreq(0))
		Expect(err).To(MatchError(ErrInvalidConfig))

		_, err = New(DefaultConfig().WithPriorityLevels(0))
		Expect(err).To(MatchError(ErrInvalidConfig))

		_, err = New(DefaultConfig().WithDefaultTimeSlice(0))
		Expect(err).To(MatchError(ErrInvalidConfig))
	})

	It("should run only once", func() {
		k, err := boot(DefaultConfig(), func(*Kernel) {})
		Expect(err).NotTo(HaveOccurred())

		Expect(k.Run(func(any) {}, nil)).To(MatchError(ErrAlreadyRan))
	})

	It("should reject a nil main task", func() {
		k, err := New(DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		Expect(k.Run(nil, nil)).To(MatchError(osal.ErrParam))
	})

	It("should report a stall when nothing can ever run", func() {
		_, err := boot(DefaultConfig(), func(k *Kernel) {
			s, _ := k.SemCreate("never", 0, 1)
			_ = k.SemWait(s, osal.WaitForever)
		})

		Expect(err).To(MatchError(ErrStalled))
	})

	It("should report a panicking task", func() {
		_, err := boot(DefaultConfig(), func(k *Kernel) {
			start(k, "bomb", 8, osal.SchedFIFO, func() {
				panic("boom")
			})

			_, _ = k.TaskSleep(10)
		})

		Expect(err).To(MatchError(ContainSubstring("task bomb panicked: boom")))
	})

	It("should report a panicking interrupt handler", func() {
		_, err := boot(DefaultConfig(), func(k *Kernel) {
			_, _ = k.TimerCreate("bad", func(any) { panic("tick") }, nil, 3, 0,
				osal.TimerActivate)
			_, _ = k.TaskSleep(10)
		})

		Expect(err).To(MatchError(ContainSubstring("interrupt handler panicked")))
	})

	It("should stop on request and run deferred functions", func() {
		var events trace

		k, err := New(DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() {
			done <- k.Run(func(any) {
				defer events.add("cleanup")

				for {
					_ = k.Spin(1)
				}
			}, nil)
		}()

		Eventually(k.Now).Should(BeNumerically(">", 10))
		k.Stop()

		Eventually(done).Should(Receive(BeNil()))
		Expect(events.list()).To(Equal([]string{"cleanup"}))
		Expect(k.Snapshot().Running).To(BeFalse())
	})

	It("should freeze time while paused", func() {
		k, err := New(DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() {
			done <- k.Run(func(any) {
				for {
					_ = k.Spin(1)
				}
			}, nil)
		}()

		Eventually(k.Now).Should(BeNumerically(">", 0))
		k.Pause()
		Expect(k.Paused()).To(BeTrue())

		time.Sleep(10 * time.Millisecond)
		frozen := k.Now()
		Consistently(k.Now, 50*time.Millisecond).Should(Equal(frozen))

		k.Continue()
		Eventually(k.Now).Should(BeNumerically(">", frozen))

		k.Stop()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should log kernel activity", func() {
		buf := new(bytes.Buffer)
		cfg := DefaultConfig().WithLogger(log.New(buf, "", 0))

		_, err := boot(cfg, func(k *Kernel) {
			start(k, "worker", 8, osal.SchedFIFO, func() {})
			_, _ = k.TaskSleep(1)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("TaskCreate"))
		Expect(buf.String()).To(ContainSubstring("worker"))
	})
})

var _ = Describe("Realtime kernel", func() {
	var mockCtrl *gomock.Controller

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should advance only on ticks of its source", func() {
		ticks := make(chan uint64, 8)
		source := NewMockTickSource(mockCtrl)
		source.EXPECT().Ticks().Return((<-chan uint64)(ticks)).AnyTimes()
		source.EXPECT().Stop()

		k, err := New(DefaultConfig().
			WithMode(ModeRealtime).
			WithTickSource(source))
		Expect(err).NotTo(HaveOccurred())

		var woke osal.Tick

		done := make(chan error, 1)
		go func() {
			done <- k.Run(func(any) {
				_, _ = k.TaskSleep(3)
				woke = k.TickGet()
			}, nil)
		}()

		Consistently(done, 20*time.Millisecond).ShouldNot(Receive())

		for i := uint64(1); i <= 3; i++ {
			ticks <- i
		}

		Eventually(done).Should(Receive(BeNil()))
		Expect(woke).To(Equal(osal.Tick(3)))
	})

	It("should fire timers as a manual clock steps", func() {
		clock := timing.NewManualClock(16)
		k, err := New(DefaultConfig().
			WithMode(ModeRealtime).
			WithTickSource(clock))
		Expect(err).NotTo(HaveOccurred())

		var fires trace

		s, err := k.SemCreate("second", 0, 1)
		Expect(err).NotTo(HaveOccurred())

		_, err = k.TimerCreate("t", func(any) {
			fires.add("%d", k.TickGet())
			if len(fires.list()) == 2 {
				_ = k.SemRelease(s)
			}
		}, nil, 2, 2, osal.TimerActivate)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() {
			done <- k.Run(func(any) {
				_ = k.SemWait(s, osal.WaitForever)
			}, nil)
		}()

		clock.Step(5)

		Eventually(done).Should(Receive(BeNil()))
		Expect(fires.list()).To(Equal([]string{"2", "4"}))
	})

	It("should serve interrupts raised by the host", func() {
		clock := timing.NewManualClock(1)
		k, err := New(DefaultConfig().
			WithMode(ModeRealtime).
			WithTickSource(clock))
		Expect(err).NotTo(HaveOccurred())

		s, err := k.SemCreate("irq", 0, 1)
		Expect(err).NotTo(HaveOccurred())

		var waitErr error

		done := make(chan error, 1)
		go func() {
			done <- k.Run(func(any) {
				waitErr = k.SemWait(s, osal.WaitForever)
			}, nil)
		}()

		Consistently(done, 20*time.Millisecond).ShouldNot(Receive())

		var isrErr error
		k.RaiseInterrupt(func() {
			isrErr = k.SemRelease(s)
		})

		Eventually(done).Should(Receive(BeNil()))
		Expect(isrErr).NotTo(HaveOccurred())
		Expect(waitErr).NotTo(HaveOccurred())
	})
})
