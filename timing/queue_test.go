package timing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue", func() {
	var q *Queue

	BeforeEach(func() {
		q = NewQueue()
	})

	It("should pop events in time order", func() {
		q.Schedule(30, "c")
		q.Schedule(10, "a")
		q.Schedule(20, "b")

		Expect(q.Len()).To(Equal(3))
		Expect(q.Pop().Payload).To(Equal("a"))
		Expect(q.Pop().Payload).To(Equal("b"))
		Expect(q.Pop().Payload).To(Equal("c"))
		Expect(q.Pop()).To(BeNil())
	})

	It("should keep scheduling order for events at the same tick", func() {
		for i := 0; i < 10; i++ {
			q.Schedule(5, i)
		}

		for i := 0; i < 10; i++ {
			Expect(q.Pop().Payload).To(Equal(i))
		}
	})

	It("should only pop due events", func() {
		q.Schedule(5, "early")
		q.Schedule(9, "late")

		Expect(q.PopDue(4)).To(BeNil())
		Expect(q.PopDue(5).Payload).To(Equal("early"))
		Expect(q.PopDue(8)).To(BeNil())
		Expect(q.Peek().Payload).To(Equal("late"))
	})

	It("should cancel events", func() {
		a := q.Schedule(1, "a")
		b := q.Schedule(2, "b")
		q.Schedule(3, "c")

		Expect(q.Cancel(b)).To(BeTrue())
		Expect(b.Scheduled()).To(BeFalse())
		Expect(q.Cancel(b)).To(BeFalse())

		Expect(q.Pop()).To(BeIdenticalTo(a))
		Expect(a.Scheduled()).To(BeFalse())
		Expect(q.Pop().Payload).To(Equal("c"))
	})

	It("should allow rescheduling a popped event", func() {
		evt := q.Schedule(1, "periodic")
		Expect(q.Pop()).To(BeIdenticalTo(evt))

		evt.Time = 11
		q.Push(evt)

		Expect(evt.Scheduled()).To(BeTrue())
		Expect(func() { q.Push(evt) }).To(Panic())
	})
})
