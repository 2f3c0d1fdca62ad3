package kernel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cosit/osal"
)

var _ = Describe("Work queue worker", func() {
	It("should stop when its idle wait fails", func() {
		_, err := boot(DefaultConfig(), func(k *Kernel) {
			q, err := k.WorkQueueCreate("wq", 0, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(k.TaskFind("wq")).NotTo(BeZero())

			k.enter()
			wq, ok := k.workqs.get(osal.Handle(q))
			Expect(ok).To(BeTrue())
			k.wakeAll(&wq.idle, osal.ErrDestroyed)
			k.exit()

			_, err = k.TaskSleep(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(k.TaskFind("wq")).To(BeZero())

			info := k.Snapshot()
			for _, o := range info.Objects {
				if o.Kind == "workqueue" && o.Name == "wq" {
					Expect(o.Owner).To(BeEmpty())
				}
			}

			w, err := k.WorkCreate(func(any) {}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(k.WorkSubmit(q, w, 0)).To(Equal(osal.ErrDestroyed))

			Expect(k.WorkQueueDestroy(q)).To(Succeed())
		})
		Expect(err).NotTo(HaveOccurred())
	})
})
