package timing

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

var _ = Describe("Freq", func() {
	It("should get period", func() {
		Expect(1 * KHz.Period()).To(Equal(time.Millisecond))
		Expect((100 * Hz).Period()).To(Equal(10 * time.Millisecond))
	})

	It("should panic if frequency is 0", func() {
		var f Freq

		Expect(func() { f.Period() }).To(Panic())
		Expect(func() { f.MsToTick(1) }).To(Panic())
	})

	It("should convert milliseconds to ticks rounding up", func() {
		f := 100 * Hz

		Expect(f.MsToTick(0)).To(Equal(osal.Tick(0)))
		Expect(f.MsToTick(10)).To(Equal(osal.Tick(1)))
		Expect(f.MsToTick(11)).To(Equal(osal.Tick(2)))
		Expect(f.MsToTick(1)).To(Equal(osal.Tick(1)))
	})

	It("should convert ticks to milliseconds rounding down", func() {
		f := 300 * Hz

		Expect(f.TickToMs(1)).To(Equal(uint64(3)))
		Expect(f.TickToMs(3)).To(Equal(uint64(10)))
	})

	It("should keep forever as forever", func() {
		f := 1 * KHz

		Expect(f.MsToTick(uint64(osal.WaitForever))).
			To(Equal(osal.WaitForever))
		Expect(f.TickToMs(osal.WaitForever)).
			To(Equal(uint64(osal.WaitForever)))
	})

	It("should saturate instead of overflowing", func() {
		f := 1 * MHz

		Expect(f.MsToTick(uint64(osal.WaitForever) - 1)).
			To(Equal(osal.WaitForever))
	})

	DescribeTable("should round trip ticks through milliseconds",
		func(f Freq, tolerance osal.Tick) {
			for _, t := range []osal.Tick{0, 1, 2, 7, 99, 1000, 123457, 1 << 40} {
				back := f.MsToTick(f.TickToMs(t))

				Expect(back).To(BeNumerically("<=", t))
				Expect(t - back).To(BeNumerically("<=", tolerance))
			}
		},
		Entry("1 kHz", 1*KHz, osal.Tick(0)),
		Entry("100 Hz", 100*Hz, osal.Tick(0)),
		Entry("300 Hz", 300*Hz, osal.Tick(0)),
		Entry("1024 Hz", 1024*Hz, osal.Tick(1)),
	)

	It("should convert durations", func() {
		f := 1 * KHz

		Expect(f.DurationToTick(0)).To(Equal(osal.Tick(0)))
		Expect(f.DurationToTick(1500 * time.Microsecond)).
			To(Equal(osal.Tick(2)))
	})
})
