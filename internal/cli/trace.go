package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rill/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Root     string // optional - only ticks started by this node
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <scope-id>",
		Short: "Show the journal of a scope",
		Long: `Show everything the journal recorded about one scope.

The output includes:
- Ticks: every tick in order, with the node that started it and what it ran
- Snapshots: snapshots archived from the scope
- Stats: totals over all ticks

Examples:
  rill trace 0192... --db ./rill.db
  rill trace 0192... --db ./rill.db --root counter/inc
  rill trace 0192... --db ./rill.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Root, "root", "", "only ticks started by this node")

	return cmd
}

func runTrace(opts *TraceOptions, scopeID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	history, err := st.GetScopeHistory(commandContext(cmd), scopeID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read scope history", err)
	}

	if opts.Root != "" {
		ticks := []store.TickRecord{}
		for _, t := range history.Ticks {
			if t.Root == opts.Root {
				ticks = append(ticks, t)
			}
		}
		history.Ticks = ticks
	}

	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: history, ScopeID: scopeID})
	}

	if len(history.Ticks) == 0 && len(history.Snapshots) == 0 {
		fmt.Fprintf(formatter.Writer, "No ticks found for scope: %s\n", scopeID)
		return nil
	}
	outputTraceText(formatter.Writer, history, opts.Verbose)
	return nil
}

func outputTraceText(w io.Writer, history store.ScopeHistory, verbose bool) {
	fmt.Fprintf(w, "Trace for Scope: %s\n", history.ScopeID)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Ticks ===")
	if len(history.Ticks) == 0 {
		fmt.Fprintln(w, "  (no ticks)")
	}
	for _, t := range history.Ticks {
		formatTick(w, t, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Snapshots ===")
	if len(history.Snapshots) == 0 {
		fmt.Fprintln(w, "  (none archived)")
	}
	for _, rec := range history.Snapshots {
		fmt.Fprintf(w, "  [%d] %s\n", rec.Seq, rec.ID)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Ticks:    %d\n", len(history.Ticks))
	fmt.Fprintf(w, "  Steps:    %d\n", history.Steps)
	fmt.Fprintf(w, "  Effects:  %d\n", history.Effects)
	fmt.Fprintf(w, "  Failed:   %d\n", history.Failed)
	fmt.Fprintf(w, "  Aborted:  %d\n", history.Aborted)
}

// formatTick formats a single journal row for text output.
func formatTick(w io.Writer, t store.TickRecord, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s (%s)", t.Seq, t.Root, t.RootKind)
	if t.Aborted {
		fmt.Fprint(w, " ABORTED")
	} else if t.Failed > 0 {
		fmt.Fprintf(w, " FAILED %d", t.Failed)
	}
	fmt.Fprintln(w)
	if verbose {
		fmt.Fprintf(w, "       steps=%d effects=%d\n", t.Steps, t.Effects)
	}
}
