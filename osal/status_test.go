package osal_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

var _ = Describe("Status", func() {
	It("should group codes by subsystem", func() {
		Expect(osal.ErrParam.Subsystem()).To(Equal(osal.SubsystemGeneric))
		Expect(osal.ErrTaskNotRR.Subsystem()).To(Equal(osal.SubsystemTask))
		Expect(osal.ErrMutexNesting.Subsystem()).To(Equal(osal.SubsystemMutex))
		Expect(osal.ErrSemOverflow.Subsystem()).To(Equal(osal.SubsystemSem))
		Expect(osal.ErrMailboxFull.Subsystem()).
			To(Equal(osal.SubsystemMailbox))
		Expect(osal.ErrWorkRunning.Subsystem()).
			To(Equal(osal.SubsystemWorkQueue))
	})

	It("should keep timeout distinct from out of memory", func() {
		Expect(osal.ErrTimeout).NotTo(Equal(osal.ErrNoMem))
	})

	It("should name known codes", func() {
		Expect(osal.ErrMutexNotOwner.Error()).
			To(Equal("mutex not owned by caller"))
		Expect(osal.Status(-0x7777).Error()).To(ContainSubstring("0x"))
	})

	It("should recover statuses from wrapped errors", func() {
		err := fmt.Errorf("lock sensor: %w", osal.ErrTimeout)

		Expect(errors.Is(err, osal.ErrTimeout)).To(BeTrue())
		Expect(osal.StatusOf(err)).To(Equal(osal.ErrTimeout))
		Expect(osal.StatusOf(nil)).To(Equal(osal.OK))
		Expect(osal.StatusOf(errors.New("boom"))).To(Equal(osal.ErrUnknown))
	})
})

var _ = Describe("Handle", func() {
	It("should pack kind, generation and index", func() {
		h := osal.NewHandle(osal.KindSem, 42, 7)

		Expect(h.Kind()).To(Equal(osal.KindSem))
		Expect(h.Index()).To(Equal(uint32(42)))
		Expect(h.Gen()).To(Equal(uint32(7)))
		Expect(h.IsNil()).To(BeFalse())
		Expect(h.String()).To(Equal("sem#42.7"))
	})

	It("should truncate the generation to 24 bits", func() {
		h := osal.NewHandle(osal.KindTask, 1, 1<<24+3)

		Expect(h.Gen()).To(Equal(uint32(3)))
		Expect(h.Kind()).To(Equal(osal.KindTask))
	})
})

type fakeBlock struct {
	osal.BlockBase
}

var _ = Describe("Block", func() {
	It("should only be claimed once until released", func() {
		b := &fakeBlock{}

		Expect(osal.Claim(b)).To(BeTrue())
		Expect(osal.InUse(b)).To(BeTrue())
		Expect(osal.Claim(b)).To(BeFalse())

		osal.Release(b)

		Expect(osal.InUse(b)).To(BeFalse())
		Expect(osal.Claim(b)).To(BeTrue())
	})
})

var _ = Describe("Timeouts", func() {
	It("should accept the sentinels and reject out of range values", func() {
		Expect(osal.ValidTimeout(osal.NoWait)).To(BeTrue())
		Expect(osal.ValidTimeout(osal.WaitForever)).To(BeTrue())
		Expect(osal.ValidTimeout(osal.MaxTimeout)).To(BeTrue())
		Expect(osal.ValidTimeout(osal.MaxTimeout + 1)).To(BeFalse())
	})

	It("should default task attributes", func() {
		attr := osal.DefaultTaskAttr()

		Expect(attr.Name).To(Equal("default_task"))
		Expect(attr.Priority).To(Equal(uint8(5)))
		Expect(attr.TimeSlice).To(Equal(osal.Tick(10)))
		Expect(attr.Policy).To(Equal(osal.SchedRR))
	})
})
