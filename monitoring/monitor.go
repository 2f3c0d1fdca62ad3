// Package monitoring serves a web page and a JSON API to watch and control a
// running kernel.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/cosit/hooking"
	"github.com/sarchlab/cosit/idgen"
	"github.com/sarchlab/cosit/kernel"
	"github.com/sarchlab/cosit/monitoring/web"
	"github.com/sarchlab/cosit/osal"
)

// Target is the kernel watched by a Monitor.
type Target interface {
	Pause()
	Continue()
	Paused() bool
	Now() osal.Tick
	Snapshot() kernel.State
}

// Monitor turns a kernel run into a web server that allows external
// monitoring and control of the kernel.
type Monitor struct {
	target      Target
	portNumber  int
	openBrowser bool
	ids         idgen.Generator

	server *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{ids: idgen.NewSequential()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the page in the default browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// RegisterKernel registers the kernel to watch.
func (m *Monitor) RegisterKernel(t Target) {
	m.target = t
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.ids.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// TrackTicks shows the progress of the kernel clock towards total ticks. The
// bar advances on every event of k.
func (m *Monitor) TrackTicks(k hooking.Hookable, total uint64) *ProgressBar {
	bar := m.CreateProgressBar("Ticks", total)
	k.AcceptHook(&tickProgressHook{bar: bar})

	return bar
}

type tickProgressHook struct {
	bar *ProgressBar
}

func (h *tickProgressHook) Func(ctx hooking.HookCtx) {
	h.bar.SetFinished(ctx.Now)
}

// Handler returns the router that serves the API and the web page.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	fs := web.GetAssets()
	fServer := http.FileServer(fs)
	r.HandleFunc("/api/pause", m.pauseKernel)
	r.HandleFunc("/api/continue", m.continueKernel)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/state", m.state)
	r.HandleFunc("/api/tasks", m.listTasks)
	r.HandleFunc("/api/task/{name}", m.taskDetails)
	r.HandleFunc("/api/field/{json}", m.fieldValue)
	r.HandleFunc("/api/objects", m.listObjects)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	if m.target == nil {
		return "", errors.New("no kernel registered")
	}

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("start monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring kernel with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	return url, nil
}

// StopServer closes the web server.
func (m *Monitor) StopServer() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

func (m *Monitor) pauseKernel(w http.ResponseWriter, _ *http.Request) {
	m.target.Pause()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) continueKernel(w http.ResponseWriter, _ *http.Request) {
	m.target.Continue()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%d,\"paused\":%t}",
		m.target.Now(), m.target.Paused())
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.target.Snapshot())
}

func (m *Monitor) listTasks(w http.ResponseWriter, _ *http.Request) {
	s := m.target.Snapshot()

	names := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		names = append(names, t.Name)
	}

	sort.Strings(names)

	writeJSON(w, names)
}

func (m *Monitor) taskDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	task, ok := m.findTaskOr404(w, name)
	if !ok {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&task)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	TaskName  string `json:"task_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	task, ok := m.findTaskOr404(w, req.TaskName)
	if !ok {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&task)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) listObjects(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	objects := []kernel.ObjectInfo{}
	for _, o := range m.target.Snapshot().Objects {
		if kind == "" || o.Kind == kind {
			objects = append(objects, o)
		}
	}

	writeJSON(w, objects)
}

func (m *Monitor) findTaskOr404(
	w http.ResponseWriter,
	name string,
) (kernel.TaskInfo, bool) {
	for _, t := range m.target.Snapshot().Tasks {
		if t.Name == name {
			return t, true
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Task not found"))
	dieOnErr(err)

	return kernel.TaskInfo{}, false
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.rsp())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second

	if s := r.URL.Query().Get("ms"); s != "" {
		ms, err := strconv.Atoi(s)
		if err != nil || ms <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: invalid duration %q", s)

			return
		}

		duration = time.Duration(ms) * time.Millisecond
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
