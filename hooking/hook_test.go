package hooking

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var (
	posA = &HookPos{Name: "A"}
	posB = &HookPos{Name: "B"}
)

var _ = Describe("HookableBase", func() {
	var (
		mockCtrl *gomock.Controller
		base     *HookableBase
		hook     *MockHook
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		base = &HookableBase{}
		hook = NewMockHook(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke registered hooks", func() {
		ctx := HookCtx{Domain: base, Pos: posA, Now: 3, Item: "x"}
		hook.EXPECT().Func(ctx)

		base.AcceptHook(hook)
		base.InvokeHook(ctx)

		Expect(base.NumHooks()).To(Equal(1))
		Expect(base.Hooks()).To(ContainElement(hook))
	})

	It("should panic on a duplicated hook", func() {
		base.AcceptHook(hook)

		Expect(func() { base.AcceptHook(hook) }).To(Panic())
	})
})

var _ = Describe("LogHook", func() {
	var buf *bytes.Buffer

	BeforeEach(func() {
		buf = new(bytes.Buffer)
	})

	It("should print every position by default", func() {
		h := NewLogHook(log.New(buf, "", 0))

		h.Func(HookCtx{Pos: posA, Now: 7, Item: "task1"})
		h.Func(HookCtx{Pos: posB, Now: 8, Item: "task2", Detail: "blocked"})

		Expect(buf.String()).To(Equal("7, A, task1\n8, B, task2, blocked\n"))
	})

	It("should filter positions", func() {
		h := NewLogHook(log.New(buf, "", 0), posB)

		h.Func(HookCtx{Pos: posA, Now: 7, Item: "task1"})
		h.Func(HookCtx{Pos: posB, Now: 8, Item: "task2"})

		Expect(buf.String()).To(Equal("8, B, task2\n"))
	})
})
