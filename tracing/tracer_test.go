package tracing

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cosit/datarecording"
	"github.com/sarchlab/cosit/hooking"
	"github.com/sarchlab/cosit/idgen"
	"github.com/sarchlab/cosit/kernel"
	"github.com/sarchlab/cosit/osal"
)

var _ = Describe("Tracer", func() {
	var (
		mockCtrl *gomock.Controller
		recorder *MockDataRecorder
		tracer   *Tracer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		recorder = NewMockDataRecorder(mockCtrl)

		recorder.EXPECT().CreateTable(EventTable, Event{})
		recorder.EXPECT().CreateTable(SegmentTable, Segment{})

		tracer = NewTracer(recorder, idgen.NewSequential())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should record events and CPU segments", func() {
		main := kernel.TaskRef{Name: "main"}
		idle := kernel.TaskRef{Name: "idle"}

		gomock.InOrder(
			recorder.EXPECT().InsertData(EventTable, Event{
				ID: "1", Time: 0, Kind: "TaskSwitch", Task: "main",
			}),
			recorder.EXPECT().InsertData(EventTable, Event{
				ID: "2", Time: 3, Kind: "Block", Task: "main", Detail: "sleep",
			}),
			recorder.EXPECT().InsertData(SegmentTable, Segment{
				Task: "main", Start: 0, End: 3,
			}),
			recorder.EXPECT().InsertData(EventTable, Event{
				ID: "3", Time: 3, Kind: "TaskSwitch", Task: "idle",
				Detail: "main",
			}),
			recorder.EXPECT().InsertData(EventTable, Event{
				ID: "4", Time: 8, Kind: "TimerFire", Task: "blink",
			}),
			recorder.EXPECT().InsertData(SegmentTable, Segment{
				Task: "idle", Start: 3, End: 9,
			}),
			recorder.EXPECT().Flush(),
		)

		tracer.Func(hooking.HookCtx{
			Pos: kernel.HookPosTaskSwitch, Now: 0, Item: main,
		})
		tracer.Func(hooking.HookCtx{
			Pos: kernel.HookPosBlock, Now: 3, Item: main, Detail: "sleep",
		})
		tracer.Func(hooking.HookCtx{
			Pos: kernel.HookPosTaskSwitch, Now: 3, Item: idle, Detail: main,
		})
		tracer.Func(hooking.HookCtx{Pos: kernel.HookPosTick, Now: 8})
		tracer.Func(hooking.HookCtx{
			Pos: kernel.HookPosTimerFire, Now: 8, Item: "blink",
		})
		tracer.Finish(9)
	})

	It("should skip empty segments", func() {
		recorder.EXPECT().
			InsertData(EventTable, gomock.Any()).
			Times(2)
		recorder.EXPECT().Flush()

		tracer.Func(hooking.HookCtx{
			Pos: kernel.HookPosTaskSwitch, Now: 4,
			Item: kernel.TaskRef{Name: "a"},
		})
		tracer.Func(hooking.HookCtx{
			Pos: kernel.HookPosTaskSwitch, Now: 4,
			Item: kernel.TaskRef{Name: "b"},
		})
		tracer.Finish(4)
	})
})

var _ = Describe("Trace round trip", func() {
	It("should read back what a kernel run recorded", func() {
		path := filepath.Join(GinkgoT().TempDir(), "trace")

		recorder, err := datarecording.New(path)
		Expect(err).NotTo(HaveOccurred())

		k, err := kernel.New(kernel.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		tracer := Attach(k, recorder, idgen.NewSequential())

		err = k.Run(func(any) {
			attr := osal.DefaultTaskAttr()
			attr.Name = "worker"
			attr.Priority = 8

			_, err := k.TaskCreate(func(any) {
				_ = k.Spin(10)
			}, nil, &attr)
			Expect(err).NotTo(HaveOccurred())

			_, _ = k.TaskSleep(20)
		}, nil)
		Expect(err).NotTo(HaveOccurred())

		tracer.Finish(uint64(k.Now()))
		Expect(recorder.Close()).To(Succeed())

		data, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer data.Close()

		reader := NewReader(data)

		busy, err := reader.BusyTime(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(busy).To(HaveKeyWithValue("worker", uint64(10)))

		created, err := reader.Events(context.Background(), EventQuery{
			Kind: kernel.HookPosTaskCreate.Name,
			Task: "worker",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(HaveLen(1))

		late, err := reader.Events(context.Background(), EventQuery{From: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(late).NotTo(BeEmpty())
		for _, e := range late {
			Expect(e.Time).To(BeNumerically(">=", 10))
		}

		all, err := reader.Events(context.Background(), EventQuery{})
		Expect(err).NotTo(HaveOccurred())

		counts, err := reader.EventCounts(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(counts).To(HaveKeyWithValue(
			kernel.HookPosTaskSwitch.Name, BeNumerically(">", 0)))

		total := 0
		for _, n := range counts {
			total += n
		}
		Expect(total).To(Equal(len(all)))
	})
})
