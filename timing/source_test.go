package timing

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ManualClock", func() {
	It("should deliver numbered ticks", func() {
		c := NewManualClock(4)

		c.Step(3)

		Expect(<-c.Ticks()).To(Equal(uint64(1)))
		Expect(<-c.Ticks()).To(Equal(uint64(2)))
		Expect(<-c.Ticks()).To(Equal(uint64(3)))
	})
})

var _ = Describe("WallClock", func() {
	It("should tick until stopped", func() {
		c := NewWallClock(1 * KHz)
		defer c.Stop()

		Eventually(c.Ticks(), time.Second).Should(Receive())
	})
})
