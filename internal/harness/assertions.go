package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/rill/internal/ir"
	"github.com/roach88/rill/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nSteps run:\n")
		for _, event := range e.Trace {
			if event.Type == EventStep {
				fmt.Fprintf(&buf, "  [tick %d] %s (%s)\n", event.Tick, event.Node, event.Kind)
			}
		}
	}

	return buf.String()
}

// assertSubset checks that every expected key is present in actual with
// the same canonical JSON value.
func assertSubset(kind string, actual, expected map[string]any) error {
	for _, key := range ir.SortedKeys(expected) {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("%q = %s", key, jsonText(expected[key])),
				Actual:   fmt.Sprintf("%q not present (have %s)", key, strings.Join(ir.SortedKeys(actual), ", ")),
			}
		}
		if !sameJSON(expected[key], got) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("%q = %s", key, jsonText(expected[key])),
				Actual:   fmt.Sprintf("%q = %s", key, jsonText(got)),
			}
		}
	}
	return nil
}

// assertTraceCount checks that unit ran exactly the specified number of
// steps.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventStep && event.Node == assertion.Unit {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d steps of %s", assertion.Count, assertion.Unit),
			Actual:   fmt.Sprintf("%d steps", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that units first ran in the specified order.
// Units don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventStep {
			continue
		}
		if _, seen := positions[event.Node]; !seen {
			positions[event.Node] = i + 1 // 1-indexed for readability
		}
	}

	for _, unit := range assertion.Units {
		if positions[unit] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all units present: %v", assertion.Units),
				Actual:   fmt.Sprintf("missing unit: %s", unit),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Units); i++ {
		prev := assertion.Units[i-1]
		curr := assertion.Units[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("units in order: %v", assertion.Units),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTicks checks the number of journaled ticks of the scope.
func assertTicks(ctx context.Context, st *store.Store, scopeID string, assertion Assertion) error {
	ticks, err := st.ReadTicks(ctx, scopeID)
	if err != nil {
		return &AssertionError{
			Type:     AssertTicks,
			Expected: fmt.Sprintf("read journal of scope %s", scopeID),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if len(ticks) != assertion.Count {
		roots := make([]string, len(ticks))
		for i, t := range ticks {
			roots[i] = t.Root
		}
		return &AssertionError{
			Type:     AssertTicks,
			Expected: fmt.Sprintf("%d ticks", assertion.Count),
			Actual:   fmt.Sprintf("%d ticks: %s", len(ticks), strings.Join(roots, ", ")),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store   *store.Store
	Ctx     context.Context
	ScopeID string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for ticks assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertState:
			err = assertSubset(AssertState, result.State, assertion.Expect)
		case AssertSnapshot:
			err = assertSubset(AssertSnapshot, result.Snapshot, assertion.Expect)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTicks:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: ticks requires journal context", i)
			} else {
				err = assertTicks(actx.Ctx, actx.Store, actx.ScopeID, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
