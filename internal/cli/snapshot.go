package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/rill/internal/store"
)

// SnapshotOptions holds flags shared by the snapshot subcommands.
type SnapshotOptions struct {
	*RootOptions
	Database string
	Program  string // list filter
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect archived snapshots",
		Long: `List and show snapshots archived by run --db, serve, or test.

Examples:
  rill snapshot list --db ./rill.db
  rill snapshot list --db ./rill.db --program counter
  rill snapshot show 0192... --db ./rill.db --format json`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List archived snapshots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotList(opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Program, "program", "", "only snapshots of this program")

	show := &cobra.Command{
		Use:           "show <snapshot-id>",
		Short:         "Show one archived snapshot",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotShow(opts, args[0], cmd)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func runSnapshotList(opts *SnapshotOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListSnapshots(commandContext(cmd), opts.Program)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list snapshots", err)
	}

	if opts.Format == "json" {
		return formatter.Success(records)
	}

	w := formatter.Writer
	if len(records) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		return nil
	}
	for _, rec := range records {
		fmt.Fprintf(w, "[%d] %s  %s  scope=%s  stores=%d\n",
			rec.Seq, rec.ID, rec.Program, rec.ScopeID, len(rec.Values))
	}
	return nil
}

func runSnapshotShow(opts *SnapshotOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.ReadSnapshot(commandContext(cmd), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_ = formatter.Error(ErrCodeSnapshotNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "snapshot not found", err)
	case errors.Is(err, store.ErrCorrupt):
		_ = formatter.Error(ErrCodeSnapshotCorrupt, err.Error(), nil)
		return WrapExitError(ExitFailure, "snapshot corrupt", err)
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	if opts.Format == "json" {
		return formatter.Success(rec)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Snapshot: %s\n", rec.ID)
	fmt.Fprintf(w, "Program:  %s (%s)\n", rec.Program, truncateID(rec.ProgramHash))
	fmt.Fprintf(w, "Scope:    %s\n", rec.ScopeID)
	fmt.Fprintf(w, "Seq:      %d\n", rec.Seq)
	fmt.Fprintf(w, "Kernel:   %s, IR %s\n", rec.EngineVersion, rec.IRVersion)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Values ===")
	if len(rec.Values) == 0 {
		fmt.Fprintln(w, "  (empty)")
	}
	for _, sid := range slices.Sorted(maps.Keys(rec.Values)) {
		fmt.Fprintf(w, "  %s = %s\n", sid, formatValue(rec.Values[sid]))
	}
	return nil
}

// Snapshot error codes.
const (
	ErrCodeSnapshotNotFound = "E201"
	ErrCodeSnapshotCorrupt  = "E202"
)

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
