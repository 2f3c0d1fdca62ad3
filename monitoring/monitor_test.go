package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cosit/hooking"
	"github.com/sarchlab/cosit/kernel"
	"github.com/sarchlab/cosit/osal"
)

var _ = Describe("Monitor", func() {
	var (
		mockCtrl *gomock.Controller
		target   *MockTarget
		m        *Monitor
		handler  http.Handler
		state    kernel.State
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		target = NewMockTarget(mockCtrl)

		state = kernel.State{
			Now:     42,
			Mode:    "virtual",
			Running: true,
			Current: "main",
			Tasks: []kernel.TaskInfo{
				{Name: "main", State: "running", Priority: 5},
				{Name: "idle", State: "ready", Priority: osal.PriorityMax},
			},
			Objects: []kernel.ObjectInfo{
				{Kind: "sem", Name: "s", Count: 1, Capacity: 2},
				{Kind: "mutex", Name: "m", Owner: "main"},
			},
		}
		target.EXPECT().Snapshot().Return(state).AnyTimes()

		m = NewMonitor()
		m.RegisterKernel(target)
		handler = m.Handler()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should pause and continue the kernel", func() {
		target.EXPECT().Pause()
		target.EXPECT().Continue()

		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))
	})

	It("should report the time", func() {
		target.EXPECT().Now().Return(osal.Tick(42))
		target.EXPECT().Paused().Return(true)

		Expect(get("/api/now").Body.String()).
			To(MatchJSON(`{"now":42,"paused":true}`))
	})

	It("should return the whole state", func() {
		var decoded kernel.State

		rec := get("/api/state")
		Expect(json.Unmarshal(rec.Body.Bytes(), &decoded)).To(Succeed())
		Expect(decoded.Now).To(Equal(osal.Tick(42)))
		Expect(decoded.Tasks).To(HaveLen(2))
	})

	It("should list tasks by name", func() {
		Expect(get("/api/tasks").Body.String()).
			To(MatchJSON(`["idle","main"]`))
	})

	It("should describe a task", func() {
		rec := get("/api/task/main")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("main"))

		Expect(get("/api/task/nobody").Code).To(Equal(http.StatusNotFound))
	})

	It("should return a field of a task", func() {
		req := url.PathEscape(`{"task_name":"main","field_name":"Priority"}`)
		Expect(get("/api/field/" + req).Code).To(Equal(http.StatusOK))

		Expect(get("/api/field/" + url.PathEscape("{")).Code).
			To(Equal(http.StatusBadRequest))

		req = url.PathEscape(`{"task_name":"ghost","field_name":"Priority"}`)
		Expect(get("/api/field/" + req).Code).To(Equal(http.StatusNotFound))
	})

	It("should filter objects by kind", func() {
		var objects []kernel.ObjectInfo

		rec := get("/api/objects?kind=mutex")
		Expect(json.Unmarshal(rec.Body.Bytes(), &objects)).To(Succeed())
		Expect(objects).To(HaveLen(1))
		Expect(objects[0].Owner).To(Equal("main"))

		rec = get("/api/objects")
		Expect(json.Unmarshal(rec.Body.Bytes(), &objects)).To(Succeed())
		Expect(objects).To(HaveLen(2))
	})

	It("should track the kernel clock in a progress bar", func() {
		var domain hooking.HookableBase

		bar := m.TrackTicks(&domain, 100)
		domain.InvokeHook(hooking.HookCtx{Pos: kernel.HookPosTick, Now: 30})

		var bars []map[string]any
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &bars)).
			To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]).To(HaveKeyWithValue("name", "Ticks"))
		Expect(bars[0]).To(HaveKeyWithValue("finished", BeNumerically("==", 30)))

		domain.InvokeHook(hooking.HookCtx{Pos: kernel.HookPosTick, Now: 300})
		Expect(bar.rsp().Finished).To(Equal(uint64(100)))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(MatchJSON(`[]`))
	})

	It("should reject a bad profile duration", func() {
		Expect(get("/api/profile?ms=-1").Code).To(Equal(http.StatusBadRequest))
	})

	It("should serve the page", func() {
		rec := get("/")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should serve over TCP", func() {
		target.EXPECT().Now().Return(osal.Tick(7))
		target.EXPECT().Paused().Return(false)

		addr, err := m.WithPortNumber(80).StartServer()
		Expect(err).NotTo(HaveOccurred())
		defer m.StopServer()

		rsp, err := http.Get(addr + "/api/now")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		body, err := io.ReadAll(rsp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(MatchJSON(`{"now":7,"paused":false}`))
	})

	It("should not start without a kernel", func() {
		_, err := NewMonitor().StartServer()
		Expect(err).To(HaveOccurred())
	})
})
