package kernel

import (
	"encoding/json"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cosit/hooking"
	"github.com/sarchlab/cosit/osal"
)

func objectOf(s State, kind, name string) ObjectInfo {
	for _, o := range s.Objects {
		if o.Kind == kind && o.Name == name {
			return o
		}
	}

	Fail("no " + kind + " named " + name)

	return ObjectInfo{}
}

var _ = Describe("Snapshot", func() {
	It("should describe a kernel that has not started", func() {
		k, err := New(DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		_, err = k.SemCreate("s", 1, 3)
		Expect(err).NotTo(HaveOccurred())
		_, err = k.EventCreate("e", 0b101)
		Expect(err).NotTo(HaveOccurred())

		s := k.Snapshot()

		Expect(s.Mode).To(Equal("virtual"))
		Expect(s.Running).To(BeFalse())
		Expect(s.Tasks).To(HaveLen(2))
		Expect(infoOf(s, "idle").Policy).To(Equal("idle"))
		Expect(objectOf(s, "sem", "s").Count).To(Equal(uint64(1)))
		Expect(objectOf(s, "sem", "s").Capacity).To(Equal(uint64(3)))
		Expect(objectOf(s, "event", "e").Flags).To(Equal(uint32(0b101)))
		Expect(objectOf(s, "workqueue", "sysworkq").Owner).To(Equal("sysworkq"))
		Expect(s.Heap.Used).To(BeNumerically(">", 0))
	})

	It("should show owners and waiters while running", func() {
		var s State
		var state osal.TaskState
		var owner osal.Task
		var holder osal.Task

		_, err := boot(DefaultConfig(), func(k *Kernel) {
			m, _ := k.MutexCreate("m", 0)
			q, _ := k.QueueCreate("q", 4, 1, osal.IPCFIFO)

			holder = start(k, "holder", 8, osal.SchedFIFO, func() {
				_ = k.MutexLock(m, osal.WaitForever)
				_, _ = k.TaskSleep(50)
				_ = k.MutexUnlock(m)
			})

			start(k, "waiter", 9, osal.SchedFIFO, func() {
				_ = k.MutexLock(m, osal.WaitForever)
				_ = k.MutexUnlock(m)
			})

			start(k, "reader", 9, osal.SchedFIFO, func() {
				_, _ = k.QueueRecv(q, make([]byte, 4), osal.WaitForever)
			})

			_, _ = k.TaskSleep(5)

			s = k.Snapshot()
			state, _ = k.TaskState(holder)
			owner, _ = k.MutexOwner(m)

			Expect(k.QueueSend(q, []byte("x"))).To(Succeed())
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Running).To(BeTrue())
		Expect(s.Current).To(Equal("main"))
		Expect(s.Now).To(Equal(osal.Tick(5)))
		Expect(state).To(Equal(osal.TaskBlocked))
		Expect(owner).To(Equal(holder))

		mutex := objectOf(s, "mutex", "m")
		Expect(mutex.Owner).To(Equal("holder"))
		Expect(mutex.Waiters).To(Equal([]string{"waiter"}))
		Expect(objectOf(s, "queue", "q").Waiters).To(Equal([]string{"reader"}))

		info := infoOf(s, "holder")
		Expect(info.Priority).To(Equal(uint8(8)))
		Expect(info.WaitingOn).To(Equal("sleep"))
		Expect(info.Owns).To(Equal([]string{"m"}))
		Expect(infoOf(s, "waiter").WaitingOn).To(Equal("mutex m"))
	})

	It("should encode to JSON", func() {
		k, err := New(DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		data, err := json.Marshal(k.Snapshot())
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("mode", "virtual"))
		Expect(decoded).To(HaveKey("tasks"))
	})
})

var _ = Describe("Hooks", func() {
	var (
		mockCtrl *gomock.Controller
		hook     *MockHook
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hook = NewMockHook(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should report scheduling events", func() {
		var lock sync.Mutex
		seen := map[string]int{}

		hook.EXPECT().Func(gomock.Any()).Do(func(ctx hooking.HookCtx) {
			lock.Lock()
			defer lock.Unlock()

			seen[ctx.Pos.Name]++
		}).AnyTimes()

		k, err := New(DefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		k.AcceptHook(hook)

		err = k.Run(func(any) {
			s, _ := k.SemCreate("s", 0, 1)
			w, _ := k.WorkCreate(func(any) {}, nil)

			_, _ = k.TimerCreate("t", func(any) {
				_ = k.SemRelease(s)
			}, nil, 2, 0, osal.TimerActivate)
			_ = k.WorkDo(w, 0)

			_ = k.SemWait(s, osal.WaitForever)
		}, nil)

		Expect(err).NotTo(HaveOccurred())

		lock.Lock()
		defer lock.Unlock()

		for _, pos := range []*hooking.HookPos{
			HookPosTaskSwitch, HookPosBlock, HookPosWake, HookPosTimerFire,
			HookPosWorkStart, HookPosWorkEnd, HookPosTick, HookPosTaskDelete,
		} {
			Expect(seen).To(HaveKey(pos.Name))
		}
		Expect(seen[HookPosTick.Name]).To(Equal(1))
	})
})
