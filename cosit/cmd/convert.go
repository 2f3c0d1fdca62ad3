package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cosit/osal"
	"github.com/sarchlab/cosit/timing"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between milliseconds and ticks.",
	Long: "`convert --hz 100 --ms 25` prints the ticks a 25 ms timeout " +
		"waits at 100 Hz. `--ticks` converts the other way.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		hz, _ := cmd.Flags().GetUint64("hz")
		ms, _ := cmd.Flags().GetUint64("ms")
		ticks, _ := cmd.Flags().GetUint64("ticks")

		line, err := convert(hz, ms, ticks,
			cmd.Flags().Changed("ms"), cmd.Flags().Changed("ticks"))
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), line)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().Uint64("hz", uint64(timing.KHz), "tick frequency")
	convertCmd.Flags().Uint64("ms", 0, "milliseconds to convert to ticks")
	convertCmd.Flags().Uint64("ticks", 0, "ticks to convert to milliseconds")
}

func convert(hz, ms, ticks uint64, haveMs, haveTicks bool) (string, error) {
	if hz == 0 {
		return "", errors.New("--hz must be positive")
	}

	if haveMs == haveTicks {
		return "", errors.New("exactly one of --ms and --ticks is required")
	}

	f := timing.Freq(hz)

	if haveMs {
		return fmt.Sprintf("%d ms = %d ticks at %d Hz",
			ms, f.MsToTick(ms), hz), nil
	}

	return fmt.Sprintf("%d ticks = %d ms at %d Hz",
		ticks, f.TickToMs(osal.Tick(ticks)), hz), nil
}
