package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/rill"
	"github.com/roach88/rill/internal/compiler"
	"github.com/roach88/rill/internal/ir"
	"github.com/roach88/rill/internal/program"
	"github.com/roach88/rill/internal/store"
	"github.com/roach88/rill/internal/testutil"
)

// Harness is the scenario execution engine. It holds everything one run
// touches.
type Harness struct {
	prog     *program.Program
	store    *store.Store
	scope    *rill.Scope
	recorder *Recorder
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Load, validate and build the program
//  2. Fork a scope with a fixed id, seeded from values
//  3. Dispatch each step and wait until it has settled
//  4. Archive the final snapshot
//  5. Evaluate assertions
//
// The returned error is reserved for runs that could not execute; failed
// expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	loaded, err := compiler.LoadDir(scenario.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	logger := testutil.DiscardLogger()
	prog, err := program.Build(loaded.Spec, logger)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	seeds, err := seedSnapshot(scenario.Values)
	if err != nil {
		return nil, fmt.Errorf("values: %w", err)
	}

	rec := NewRecorder(prog.Name(), testutil.NewCounter())
	scope, err := prog.Fork(nil,
		rill.WithScopeIDs(testutil.NewFixedScopeIDs(scenario.ScopeID)),
		rill.WithHooks(rec, store.NewJournal(st, logger)),
		rill.WithSnapshot(seeds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fork scope: %w", err)
	}

	h := &Harness{
		prog:     prog,
		store:    st,
		scope:    scope,
		recorder: rec,
		logger:   logger,
	}

	result := NewResult(scope.ID())
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	result.Trace = rec.Events()
	result.State = prog.State(scope)

	saved, err := st.WriteSnapshot(ctx, store.SnapshotRecord{
		Program:     prog.Name(),
		ProgramHash: prog.Hash(),
		ScopeID:     scope.ID(),
		Values:      prog.Snapshot(scope),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive snapshot: %w", err)
	}
	result.Snapshot = saved.Values

	actx := &AssertionContext{
		Store:   st,
		Ctx:     ctx,
		ScopeID: scope.ID(),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSteps dispatches every step in order.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		h.recorder.Mark(TraceEvent{Type: EventDispatch, Node: step.Dispatch})

		settled, diag := h.prog.Dispatch(ctx, h.scope, step.Dispatch, step.Payload)
		if errors.Is(diag, program.ErrUnknownUnit) {
			return fmt.Errorf("steps[%d]: %w", i, diag)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}

		sr := StepResult{
			Dispatch: step.Dispatch,
			Status:   string(settled.Status),
			Value:    settled.Value,
		}
		if settled.Err != nil {
			sr.Error = settled.Err.Error()
		}
		if diag != nil {
			sr.Diagnostic = diag.Error()
		}
		result.Steps = append(result.Steps, sr)
		h.recorder.Mark(TraceEvent{Type: EventSettled, Node: step.Dispatch, Status: sr.Status, Error: sr.Error})

		for _, msg := range checkExpect(step, sr) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Dispatch, msg))
		}

		h.logger.Info("step completed",
			"step", i,
			"unit", step.Dispatch,
			"status", sr.Status,
		)
	}
	return nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(step Step, sr StepResult) []string {
	if step.Expect == nil {
		if sr.Diagnostic != "" {
			return []string{"unexpected diagnostic: " + sr.Diagnostic}
		}
		return nil
	}

	var msgs []string
	exp := step.Expect
	if exp.Status != sr.Status {
		msgs = append(msgs, fmt.Sprintf("expected status %q, got %q (error: %s)", exp.Status, sr.Status, sr.Error))
	}
	if exp.Value != nil && !sameJSON(exp.Value, sr.Value) {
		msgs = append(msgs, fmt.Sprintf("expected value %s, got %s", jsonText(exp.Value), jsonText(sr.Value)))
	}
	if exp.Error != "" {
		if !strings.Contains(sr.Error, exp.Error) && !strings.Contains(sr.Diagnostic, exp.Error) {
			msgs = append(msgs, fmt.Sprintf("expected error containing %q, got %q", exp.Error, sr.Error))
		}
	} else if sr.Diagnostic != "" {
		msgs = append(msgs, "unexpected diagnostic: "+sr.Diagnostic)
	}
	return msgs
}

// seedSnapshot turns YAML values into a snapshot with JSON-plain values,
// the same shape an archived snapshot decodes to.
func seedSnapshot(values map[string]any) (rill.Snapshot, error) {
	if len(values) == 0 {
		return rill.Snapshot{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return rill.ParseSnapshot(data)
}

// sameJSON reports whether a and b have the same canonical JSON form, so
// YAML integers match float64 state values.
func sameJSON(a, b any) bool {
	ja, err := ir.MarshalCanonical(a)
	if err != nil {
		return false
	}
	jb, err := ir.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}

func jsonText(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
