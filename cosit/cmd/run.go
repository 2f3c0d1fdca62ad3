package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cosit/config"
	"github.com/sarchlab/cosit/datarecording"
	"github.com/sarchlab/cosit/idgen"
	"github.com/sarchlab/cosit/kernel"
	"github.com/sarchlab/cosit/monitoring"
	"github.com/sarchlab/cosit/scenario"
	"github.com/sarchlab/cosit/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run a scenario on a new kernel.",
	Long: "`run <scenario>` boots a kernel from the configuration and " +
		"runs the scenario as its main task. Flags override the file.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ok := scenario.Find(args[0])
		if !ok {
			return fmt.Errorf("unknown scenario %q, see `cosit list`", args[0])
		}

		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		if err := applyRunFlags(cmd, &settings); err != nil {
			return err
		}

		ticks, _ := cmd.Flags().GetUint64("ticks")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runScenario(ctx, s, settings, ticks,
			cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.Uint64("hz", 0, "tick frequency")
	flags.Bool("realtime", false, "advance ticks with the wall clock")
	flags.Int("heap", 0, "heap size in bytes")
	flags.String("trace", "", "record a sqlite trace to this file")
	flags.Bool("monitor", false, "serve the web monitor while running")
	flags.Int("port", 0, "port of the web monitor")
	flags.Bool("open", false, "open the web monitor in a browser")
	flags.Uint64("ticks", 0, "expected length, shown as monitor progress")
}

func applyRunFlags(cmd *cobra.Command, f *config.File) error {
	flags := cmd.Flags()

	if flags.Changed("hz") {
		f.Kernel.Hz, _ = flags.GetUint64("hz")
	}

	if realtime, _ := flags.GetBool("realtime"); realtime {
		f.Kernel.Mode = "realtime"
	}

	if flags.Changed("heap") {
		f.Kernel.HeapSize, _ = flags.GetInt("heap")
	}

	if flags.Changed("trace") {
		f.Trace.Enabled = true
		f.Trace.Path, _ = flags.GetString("trace")
	}

	if flags.Changed("monitor") {
		f.Monitor.Enabled, _ = flags.GetBool("monitor")
	}

	if flags.Changed("port") {
		f.Monitor.Port, _ = flags.GetInt("port")
	}

	if open, _ := flags.GetBool("open"); open {
		f.Monitor.Enabled = true
		f.Monitor.Open = true
	}

	_, err := f.KernelConfig()

	return err
}

// runScenario boots a kernel described by settings and runs s on it. The
// kernel stops early if ctx is cancelled.
func runScenario(
	ctx context.Context,
	s scenario.Scenario,
	settings config.File,
	ticks uint64,
	out, errOut io.Writer,
) error {
	cfg, err := settings.KernelConfig()
	if err != nil {
		return err
	}

	if settings.Verbose {
		cfg.Logger = log.New(errOut, "", 0)
	}

	k, err := kernel.New(cfg)
	if err != nil {
		return err
	}

	var (
		tracer   *tracing.Tracer
		recorder datarecording.DataRecorder
	)

	if settings.Trace.Enabled {
		recorder, err = datarecording.New(settings.Trace.Path)
		if err != nil {
			return err
		}
		defer recorder.Close()

		tracer = tracing.Attach(k, recorder, idgen.NewSequential())
	}

	if settings.Monitor.Enabled {
		m := monitoring.NewMonitor().
			WithPortNumber(settings.Monitor.Port).
			WithBrowser(settings.Monitor.Open)
		m.RegisterKernel(k)

		if ticks > 0 {
			m.TrackTicks(k, ticks)
		}

		if _, err := m.StartServer(); err != nil {
			return err
		}
		defer m.StopServer()
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			k.Stop()
		case <-done:
		}
	}()

	var runErr error

	err = k.Run(func(any) { runErr = s.Run(k, out) }, nil)

	if tracer != nil {
		tracer.Finish(uint64(k.Now()))
	}

	if err != nil {
		return fmt.Errorf("kernel: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("%s: %w", s.Name, runErr)
	}

	return nil
}
