package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/ir"
	"github.com/roach88/rill/internal/program"
	"github.com/roach88/rill/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	From       string   // snapshot id to restore
	Resume     bool     // continue the snapshot's scope instead of forking a new one
	Dispatches []string // unit[=json], in order
	MaxSteps   int

	// ScopeIDs overrides the scope id generator (for testing).
	ScopeIDs rill.IDGenerator
}

// DispatchResult is the outcome of one --dispatch.
type DispatchResult struct {
	Unit       string      `json:"unit"`
	Payload    any         `json:"payload,omitempty"`
	Status     rill.Status `json:"status"`
	Value      any         `json:"value,omitempty"`
	Error      string      `json:"error,omitempty"`
	Diagnostic string      `json:"diagnostic,omitempty"`
}

// RunResult holds the outcome of a run.
type RunResult struct {
	Program    string           `json:"program"`
	Scope      string           `json:"scope"`
	Restored   string           `json:"restored,omitempty"`
	Resumed    bool             `json:"resumed,omitempty"`
	Dispatches []DispatchResult `json:"dispatches"`
	State      map[string]any   `json:"state"`
	SnapshotID string           `json:"snapshot_id,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program-dir>",
		Short: "Run dispatches against a program",
		Long: `Fork a scope of a program and fire units in it, one after another.

Each --dispatch waits until everything it caused has settled before the
next one fires. The payload after '=' is JSON; without it the payload is
null.

With --db every tick is journaled and the final snapshot is archived;
--from restores the scope from an archived snapshot first. With --resume
the run continues the snapshot's scope: it keeps the scope id and numbers
its ticks after the last one journaled, so trace shows both runs as one.

Examples:
  rill run ./counter --dispatch inc --dispatch inc
  rill run ./counter --dispatch 'add={"n": 2}' --db ./rill.db
  rill run ./counter --dispatch inc --db ./rill.db --from 0192...
  rill run ./counter --dispatch inc --db ./rill.db --from 0192... --resume`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Dispatches, "dispatch", "d", nil, "unit to fire, as unit or unit=json (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for the journal and snapshots")
	cmd.Flags().StringVar(&opts.From, "from", "", "restore the scope from this snapshot id (requires --db)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "continue the snapshot's scope and journal numbering (requires --from)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", 0, "per-tick step quota (0 keeps the kernel default)")

	return cmd
}

// dispatchArg is a parsed --dispatch value.
type dispatchArg struct {
	unit    string
	payload any
}

// parseDispatch splits "unit=json" into a unit name and payload.
func parseDispatch(s string) (dispatchArg, error) {
	unit, raw, hasPayload := strings.Cut(s, "=")
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return dispatchArg{}, fmt.Errorf("dispatch %q: unit name is empty", s)
	}
	if !hasPayload {
		return dispatchArg{unit: unit}, nil
	}

	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return dispatchArg{}, fmt.Errorf("dispatch %q: payload is not JSON: %w", unit, err)
	}
	return dispatchArg{unit: unit, payload: payload}, nil
}

func runProgram(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd)

	if len(opts.Dispatches) == 0 {
		return NewExitError(ExitCommandError, "at least one --dispatch is required")
	}
	if opts.From != "" && opts.Database == "" {
		return NewExitError(ExitCommandError, "--from requires --db")
	}
	if opts.Resume && opts.From == "" {
		return NewExitError(ExitCommandError, "--resume requires --from")
	}

	prog, err := loadProgram(dir, logger)
	if err != nil {
		return err
	}

	// Everything is checked before the first dispatch fires.
	dispatches := make([]dispatchArg, 0, len(opts.Dispatches))
	for _, s := range opts.Dispatches {
		d, err := parseDispatch(s)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --dispatch", err)
		}
		if _, ok := prog.Unit(d.unit); !ok {
			return WrapExitError(ExitCommandError, "invalid --dispatch",
				fmt.Errorf("%q: %w", d.unit, program.ErrUnknownUnit))
		}
		dispatches = append(dispatches, d)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var forkOpts []rill.ForkOption
	if opts.ScopeIDs != nil {
		forkOpts = append(forkOpts, rill.WithScopeIDs(opts.ScopeIDs))
	}
	if opts.MaxSteps > 0 {
		forkOpts = append(forkOpts, rill.WithMaxSteps(opts.MaxSteps))
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		forkOpts = append(forkOpts, rill.WithHooks(store.NewJournal(st, logger)))
	}

	result := RunResult{Program: prog.Name(), Restored: opts.From}
	if opts.From != "" {
		rec, err := st.ReadSnapshot(ctx, opts.From)
		if errors.Is(err, store.ErrNotFound) {
			return WrapExitError(ExitCommandError, "cannot restore", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read snapshot", err)
		}
		if rec.Program != prog.Name() {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("snapshot %s belongs to program %q, not %q", rec.ID, rec.Program, prog.Name()))
		}
		if rec.ProgramHash != prog.Hash() {
			logger.Warn("restoring snapshot of a different program revision",
				"snapshot", rec.ID,
				"snapshot_hash", rec.ProgramHash,
				"hash", prog.Hash(),
			)
		}
		forkOpts = append(forkOpts, rill.WithSnapshot(rec.Values))

		if opts.Resume {
			last, err := st.LastTickSeq(ctx, rec.ScopeID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read journal", err)
			}
			forkOpts = append(forkOpts, rill.Resume(rec.ScopeID, last))
			result.Resumed = true
		}
	}

	scope, err := prog.Fork(nil, forkOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to fork scope", err)
	}
	result.Scope = scope.ID()
	formatter.VerboseLog("Forked scope %s of %s", scope.ID(), prog.Name())

	failed := 0
	for _, d := range dispatches {
		settled, diag := prog.Dispatch(ctx, scope, d.unit, d.payload)
		if err := ctx.Err(); err != nil {
			return WrapExitError(ExitFailure, "run interrupted", err)
		}

		dr := DispatchResult{
			Unit:    d.unit,
			Payload: d.payload,
			Status:  settled.Status,
			Value:   settled.Value,
		}
		if settled.Err != nil {
			dr.Error = settled.Err.Error()
		}
		if diag != nil {
			dr.Diagnostic = diag.Error()
		}
		if dr.Status != rill.StatusDone || dr.Diagnostic != "" {
			failed++
		}
		result.Dispatches = append(result.Dispatches, dr)
	}
	result.State = prog.State(scope)

	if st != nil {
		rec, err := st.WriteSnapshot(ctx, store.SnapshotRecord{
			Program:     prog.Name(),
			ProgramHash: prog.Hash(),
			ScopeID:     scope.ID(),
			Values:      prog.Snapshot(scope),
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to archive snapshot", err)
		}
		result.SnapshotID = rec.ID
	}

	return outputRunResult(formatter, result, failed)
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func outputRunResult(formatter *OutputFormatter, result RunResult, failed int) error {
	var exitErr error
	if failed > 0 {
		exitErr = NewExitError(ExitFailure, fmt.Sprintf("%d dispatch(es) failed", failed))
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result, ScopeID: result.Scope}
		if failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: "E_DISPATCH_FAILED", Message: exitErr.Error()}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Scope: %s\n", result.Scope)
	if result.Restored != "" {
		fmt.Fprintf(w, "Restored from: %s\n", result.Restored)
	}
	if result.Resumed {
		fmt.Fprintln(w, "Resumed: journal continues")
	}
	fmt.Fprintln(w)

	for _, d := range result.Dispatches {
		mark := "✓"
		if d.Status != rill.StatusDone || d.Diagnostic != "" {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s → %s", mark, d.Unit, d.Status)
		if d.Value != nil {
			fmt.Fprintf(w, " %s", formatValue(d.Value))
		}
		fmt.Fprintln(w)
		if d.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", d.Error)
		}
		if d.Diagnostic != "" {
			fmt.Fprintf(w, "  diagnostic: %s\n", d.Diagnostic)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== State ===")
	for _, name := range slices.Sorted(maps.Keys(result.State)) {
		fmt.Fprintf(w, "  %s = %s\n", name, formatValue(result.State[name]))
	}

	if result.SnapshotID != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Snapshot: %s\n", result.SnapshotID)
	}
	return exitErr
}

// formatValue renders a value as canonical JSON.
func formatValue(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
