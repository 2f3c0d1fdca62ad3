// Package config loads the settings of a cosit run from a YAML file and
// COSIT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/cosit/kernel"
	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

// EnvPrefix starts the name of every variable read by Load.
const EnvPrefix = "COSIT_"

// Kernel holds the kernel settings.
type Kernel struct {
	Hz                   uint64 `yaml:"hz"`
	Mode                 string `yaml:"mode"`
	HeapSize             int    `yaml:"heap_size"`
	PriorityLevels       int    `yaml:"priority_levels"`
	TimeSlice            uint32 `yaml:"time_slice"`
	MainPriority         uint8  `yaml:"main_priority"`
	MainStackSize        int    `yaml:"main_stack_size"`
	SysWorkQueue         bool   `yaml:"sys_work_queue"`
	SysWorkQueuePriority uint8  `yaml:"sys_work_queue_priority"`
	NoPriorityIPC        bool   `yaml:"no_priority_ipc"`
}

// Trace holds the settings of the sqlite trace.
type Trace struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Monitor holds the settings of the web monitor.
type Monitor struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	Open    bool `yaml:"open"`
}

// File is the content of a configuration file.
type File struct {
	Kernel  Kernel  `yaml:"kernel"`
	Trace   Trace   `yaml:"trace"`
	Monitor Monitor `yaml:"monitor"`
	Verbose bool    `yaml:"verbose"`
}

// Default returns the settings of kernel.DefaultConfig.
func Default() File {
	d := kernel.DefaultConfig()

	return File{
		Kernel: Kernel{
			Hz:                   uint64(d.Freq),
			Mode:                 d.Mode.String(),
			HeapSize:             d.HeapSize,
			PriorityLevels:       d.PriorityLevels,
			TimeSlice:            uint32(d.DefaultTimeSlice),
			MainPriority:         d.MainPriority,
			MainStackSize:        d.MainStackSize,
			SysWorkQueue:         d.SysWorkQueue,
			SysWorkQueuePriority: d.SysWorkQueuePriority,
			NoPriorityIPC:        d.NoPriorityIPC,
		},
	}
}

// Load starts from Default, applies the YAML file at path if path is not
// empty, and then the COSIT_* variables. Variables of the process environment
// take precedence over those of the envFiles, which are read with godotenv.
func Load(path string, envFiles ...string) (File, error) {
	f := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("read config: %w", err)
		}

		if err := f.decode(data); err != nil {
			return File{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	env, err := environment(envFiles)
	if err != nil {
		return File{}, err
	}

	if err := f.overlay(env); err != nil {
		return File{}, err
	}

	if _, err := f.KernelConfig(); err != nil {
		return File{}, err
	}

	return f, nil
}

func (f *File) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err := dec.Decode(f)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func environment(envFiles []string) (map[string]string, error) {
	env := map[string]string{}

	if len(envFiles) > 0 {
		fromFiles, err := godotenv.Read(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}

		env = fromFiles
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(key, EnvPrefix) {
			env[key] = value
		}
	}

	return env, nil
}

type setter func(value string) error

func (f *File) setters() map[string]setter {
	return map[string]setter{
		"HZ":         uintSetter(&f.Kernel.Hz),
		"MODE":       func(v string) error { f.Kernel.Mode = v; return nil },
		"HEAP":       intSetter(&f.Kernel.HeapSize),
		"PRIORITIES": intSetter(&f.Kernel.PriorityLevels),
		"TIME_SLICE": func(v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			f.Kernel.TimeSlice = uint32(n)

			return err
		},
		"MAIN_PRIORITY":   uint8Setter(&f.Kernel.MainPriority),
		"SYSWORKQ":        boolSetter(&f.Kernel.SysWorkQueue),
		"SYSWORKQ_PRIO":   uint8Setter(&f.Kernel.SysWorkQueuePriority),
		"NO_PRIORITY_IPC": boolSetter(&f.Kernel.NoPriorityIPC),
		"TRACE":           boolSetter(&f.Trace.Enabled),
		"TRACE_PATH":      func(v string) error { f.Trace.Path = v; return nil },
		"MONITOR":         boolSetter(&f.Monitor.Enabled),
		"MONITOR_PORT":    intSetter(&f.Monitor.Port),
		"MONITOR_OPEN":    boolSetter(&f.Monitor.Open),
		"VERBOSE":         boolSetter(&f.Verbose),
	}
}

func (f *File) overlay(env map[string]string) error {
	for name, set := range f.setters() {
		value, ok := env[EnvPrefix+name]
		if !ok {
			continue
		}

		if err := set(value); err != nil {
			return fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err)
		}
	}

	return nil
}

func uintSetter(dst *uint64) setter {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		*dst = n

		return err
	}
}

func uint8Setter(dst *uint8) setter {
	return func(v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		*dst = uint8(n)

		return err
	}
}

func intSetter(dst *int) setter {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		*dst = n

		return err
	}
}

func boolSetter(dst *bool) setter {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		*dst = b

		return err
	}
}

// KernelConfig builds the kernel configuration. It returns an error wrapping
// kernel.ErrInvalidConfig if the settings cannot describe a kernel.
func (f File) KernelConfig() (kernel.Config, error) {
	k := f.Kernel

	var mode kernel.Mode

	switch k.Mode {
	case "", "virtual":
		mode = kernel.ModeVirtual
	case "realtime":
		mode = kernel.ModeRealtime
	default:
		return kernel.Config{}, fmt.Errorf("%w: unknown mode %q",
			kernel.ErrInvalidConfig, k.Mode)
	}

	cfg := kernel.DefaultConfig().
		WithFreq(timing.Freq(k.Hz)).
		WithMode(mode).
		WithHeapSize(k.HeapSize).
		WithPriorityLevels(k.PriorityLevels).
		WithDefaultTimeSlice(osal.Tick(k.TimeSlice)).
		WithMainPriority(k.MainPriority).
		WithSysWorkQueue(k.SysWorkQueue, k.SysWorkQueuePriority)
	cfg.MainStackSize = k.MainStackSize

	if k.NoPriorityIPC {
		cfg = cfg.WithNoPriorityIPC()
	}

	if err := cfg.Validate(); err != nil {
		return kernel.Config{}, err
	}

	return cfg, nil
}
