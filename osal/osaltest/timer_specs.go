package osaltest

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

// fireLog records the tick offsets at which a timer fired.
type fireLog struct {
	recorder
	start osal.Tick
}

func (l *fireLog) fn(k osal.Kernel) osal.TimerFunc {
	return func(any) { l.add("%d", k.TickGet()-l.start) }
}

func describeTimer(b Backend) {
	Context("timer", func() {
		It("should fire a one-shot timer once", func() {
			var fires fireLog
			var remaining osal.Tick
			var stopped error

			err := boot(b, func(k osal.Kernel) {
				fires.start = k.TickGet()
				t := must1(k.TimerCreate("once", fires.fn(k), nil, 5, 0,
					osal.TimerActivate))

				sleep(k, 20)
				remaining, _ = must2(k.TimerTime(t))
				stopped = k.TimerStop(t)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(fires.list()).To(Equal([]string{"5"}))
			Expect(remaining).To(BeZero())
			Expect(stopped).To(MatchError(osal.ErrTimerStopped))
		})

		It("should fire a periodic timer until stopped", func() {
			var fires fireLog
			var remaining, period osal.Tick
			var second error

			err := boot(b, func(k osal.Kernel) {
				fires.start = k.TickGet()
				t := must1(k.TimerCreate("tick", fires.fn(k), nil, 3, 4,
					osal.TimerActivate))

				sleep(k, 20)
				remaining, period = must2(k.TimerTime(t))
				must(k.TimerStop(t))
				second = k.TimerStop(t)
				sleep(k, 10)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(fires.list()).To(Equal([]string{"3", "7", "11", "15", "19"}))
			Expect(remaining).To(Equal(osal.Tick(3)))
			Expect(period).To(Equal(osal.Tick(4)))
			Expect(second).To(MatchError(osal.ErrTimerStopped))
		})

		It("should use the period as the first delay when initial is 0", func() {
			var fires fireLog

			err := boot(b, func(k osal.Kernel) {
				fires.start = k.TickGet()
				t := must1(k.TimerCreate("p", fires.fn(k), nil, 0, 5,
					osal.TimerActivate))

				sleep(k, 12)
				must(k.TimerDelete(t))
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(fires.list()).To(Equal([]string{"5", "10"}))
		})

		It("should stay idle until started", func() {
			var fires fireLog

			err := boot(b, func(k osal.Kernel) {
				t := must1(k.TimerCreate("lazy", fires.fn(k), nil, 2, 0, 0))
				sleep(k, 5)
				fires.start = k.TickGet()
				must(k.TimerStart(t))
				sleep(k, 5)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(fires.list()).To(Equal([]string{"2"}))
		})

		It("should reject invalid timers", func() {
			var noTimes, noFn, both error

			err := boot(b, func(k osal.Kernel) {
				fn := func(any) {}

				_, noTimes = k.TimerCreate("t", fn, nil, 0, 0, 0)
				_, noFn = k.TimerCreate("t", nil, nil, 1, 0, 0)
				_, both = k.TimerCreate("t", fn, nil, 1, 0,
					osal.TimerActivate|osal.TimerDeactivate)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(noTimes).To(MatchError(osal.ErrParam))
			Expect(noFn).To(MatchError(osal.ErrParam))
			Expect(both).To(MatchError(osal.ErrParam))
		})

		It("should move the first expiry when changed before it", func() {
			var fires fireLog

			err := boot(b, func(k osal.Kernel) {
				fires.start = k.TickGet()
				t := must1(k.TimerCreate("t", fires.fn(k), nil, 10, 0,
					osal.TimerActivate))

				sleep(k, 2)
				must(k.TimerChange(t, 4, 0))
				sleep(k, 10)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(fires.list()).To(Equal([]string{"4"}))
		})

		It("should apply a changed period from the next expiry", func() {
			var fires fireLog

			err := boot(b, func(k osal.Kernel) {
				fires.start = k.TickGet()
				t := must1(k.TimerCreate("t", fires.fn(k), nil, 2, 5,
					osal.TimerActivate))

				sleep(k, 3)
				must(k.TimerChange(t, 2, 10))
				sleep(k, 17)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(fires.list()).To(Equal([]string{"2", "7", "17"}))
		})

		It("should run callbacks in interrupt context", func() {
			var log recorder

			err := boot(b, func(k osal.Kernel) {
				s := must1(k.SemCreate("s", 0, 1))

				must1(k.TimerCreate("isr", func(any) {
					log.add("wait: %v", osal.StatusOf(k.SemWait(s, 1)))
					_, err := k.Malloc(8)
					log.add("malloc: %v", osal.StatusOf(err))
					log.add("release: %v", osal.StatusOf(k.SemRelease(s)))
				}, nil, 3, 0, osal.TimerActivate))

				must(k.SemWait(s, osal.WaitForever))
				log.add("woke")
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(log.list()).To(Equal([]string{
				"wait: not allowed in interrupt context",
				"malloc: not allowed in interrupt context",
				"release: ok",
				"woke",
			}))
		})
	})
}

func must2[T, U any](v T, u U, err error) (T, U) {
	must(err)
	return v, u
}
