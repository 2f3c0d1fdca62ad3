package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cosit/datarecording"
	"github.com/sarchlab/cosit/tracing"
)

var reportCmd = &cobra.Command{
	Use:   "report <trace.sqlite3>",
	Short: "Summarize a trace recorded by `run --trace`.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var q tracing.EventQuery

		list, _ := cmd.Flags().GetBool("events")
		q.Kind, _ = cmd.Flags().GetString("kind")
		q.Task, _ = cmd.Flags().GetString("task")
		q.Limit, _ = cmd.Flags().GetInt("limit")

		var filter *tracing.EventQuery
		if list {
			filter = &q
		}

		return report(cmd.Context(), args[0], filter, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Bool("events", false, "list the events")
	reportCmd.Flags().String("kind", "", "only list events of this kind")
	reportCmd.Flags().String("task", "", "only list events of this task")
	reportCmd.Flags().Int("limit", 0, "list at most this many events")
}

// report prints the CPU time of every task and the number of events of each
// kind. If events is not nil, the matching events are listed too.
func report(
	ctx context.Context,
	path string,
	events *tracing.EventQuery,
	out io.Writer,
) error {
	path = datarecording.Filename(path)
	if _, err := os.Stat(path); err != nil {
		return err
	}

	data, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer data.Close()

	r := tracing.NewReader(data)

	busy, err := r.BusyTime(ctx)
	if err != nil {
		return err
	}

	kinds, err := r.EventCounts(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "TASK\tTICKS")
	for _, name := range sortedKeys(busy) {
		fmt.Fprintf(w, "%s\t%d\n", name, busy[name])
	}

	fmt.Fprintln(w, "\nEVENT\tCOUNT")
	for _, kind := range sortedKeys(kinds) {
		fmt.Fprintf(w, "%s\t%d\n", kind, kinds[kind])
	}

	if events != nil {
		list, err := r.Events(ctx, *events)
		if err != nil {
			return err
		}

		fmt.Fprintln(w, "\nTIME\tKIND\tTASK\tDETAIL")
		for _, e := range list {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Time, e.Kind, e.Task, e.Detail)
		}
	}

	return w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
