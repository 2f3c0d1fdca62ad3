// Package scenario holds small applications written against osal.Kernel.
// They run unmodified on any backend and print what they observe.
package scenario

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sarchlab/cosit/osal"
)

// Scenario is a portable application.
type Scenario struct {
	Name        string
	Description string

	// Run is called from the main task. It returns once every task it
	// started has finished.
	Run func(k osal.Kernel, out io.Writer) error
}

var registry = map[string]Scenario{}

func register(s Scenario) {
	if _, dup := registry[s.Name]; dup {
		panic("duplicated scenario " + s.Name)
	}

	registry[s.Name] = s
}

// All returns every scenario sorted by name.
func All() []Scenario {
	list := make([]Scenario, 0, len(registry))
	for _, s := range registry {
		list = append(list, s)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})

	return list
}

// Find returns the scenario with the given name.
func Find(name string) (Scenario, bool) {
	s, ok := registry[name]
	return s, ok
}

// printer writes one line per observation, stamped with the tick.
type printer struct {
	k    osal.Kernel
	out  io.Writer
	lock sync.Mutex
}

func (p *printer) printf(who, format string, args ...any) {
	p.lock.Lock()
	defer p.lock.Unlock()

	fmt.Fprintf(p.out, "[%4d] %s: %s\n",
		p.k.TickGet(), who, fmt.Sprintf(format, args...))
}

// group starts tasks and waits for all of them to return.
type group struct {
	k    osal.Kernel
	done osal.Sem
	n    int
}

func newGroup(k osal.Kernel) (*group, error) {
	done, err := k.SemCreate("done", 0, osal.SemNoMax)
	if err != nil {
		return nil, fmt.Errorf("create done semaphore: %w", err)
	}

	return &group{k: k, done: done}, nil
}

func (g *group) spawn(
	name string,
	prio uint8,
	policy osal.SchedPolicy,
	fn func(),
) (osal.Task, error) {
	attr := osal.DefaultTaskAttr()
	attr.Name = name
	attr.Priority = prio
	attr.Policy = policy
	attr.TimeSlice = 3

	t, err := g.k.TaskCreate(func(any) {
		defer func() { _ = g.k.SemRelease(g.done) }()

		fn()
	}, nil, &attr)
	if err != nil {
		return 0, fmt.Errorf("create task %s: %w", name, err)
	}

	g.n++

	return t, nil
}

func (g *group) wait() error {
	for ; g.n > 0; g.n-- {
		if err := g.k.SemWait(g.done, osal.WaitForever); err != nil {
			return err
		}
	}

	return g.k.SemDelete(g.done)
}

// spinner is implemented by backends that can account CPU time without
// real work, such as the virtual-tick kernel.
type spinner interface {
	Spin(ticks osal.Tick) error
}

// busy keeps the calling task on the CPU for the given number of ticks.
func busy(k osal.Kernel, ticks osal.Tick) {
	if s, ok := k.(spinner); ok {
		_ = s.Spin(ticks)
		return
	}

	for end := k.TickGet() + ticks; k.TickGet() < end; {
	}
}
