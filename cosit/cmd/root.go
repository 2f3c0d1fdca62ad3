// Package cmd provides the command-line interface for Cosit.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cosit/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cosit",
	Short: "Cosit runs portable RTOS applications on a simulated kernel.",
	Long: `Cosit runs portable RTOS applications on a simulated kernel. ` +
		`It lists and runs the bundled scenarios, converts between ` +
		`milliseconds and ticks, and summarizes recorded traces.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.StringSlice("env", nil, "dotenv files with COSIT_* variables")
	flags.BoolP("verbose", "v", false, "log kernel events to stderr")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadSettings reads the configuration named by the persistent flags.
// --verbose overrides the file.
func loadSettings(cmd *cobra.Command) (config.File, error) {
	path, _ := cmd.Flags().GetString("config")
	envFiles, _ := cmd.Flags().GetStringSlice("env")

	f, err := config.Load(path, envFiles...)
	if err != nil {
		return config.File{}, err
	}

	if cmd.Flags().Changed("verbose") {
		f.Verbose, _ = cmd.Flags().GetBool("verbose")
	}

	return f, nil
}
