package graph

import (
	"context"
	"fmt"
	"strings"
)

// Priority orders steps within a tick. Lower values run first.
type Priority uint8

const (
	// Child steps apply reducers directly from the dispatched unit.
	Child Priority = iota
	// Pure steps are side-effect free derivations (map, filter).
	Pure
	// Barrier steps are deduplicated joins (combine). The band runs after
	// all pure work and before samplers.
	Barrier
	// Sampler steps read current state on a clock (sample).
	Sampler
	// Effect steps run watchers and launch effect bodies.
	Effect
)

// NumPriorities is the number of priority bands.
const NumPriorities = int(Effect) + 1

func (p Priority) String() string {
	switch p {
	case Child:
		return "child"
	case Pure:
		return "pure"
	case Barrier:
		return "barrier"
	case Sampler:
		return "sampler"
	case Effect:
		return "effect"
	default:
		return fmt.Sprintf("priority(%d)", p)
	}
}

// WarnMode controls diagnostic strictness for a unit.
type WarnMode uint8

const (
	// Off suppresses the diagnostic.
	Off WarnMode = iota
	// Warn logs the diagnostic.
	Warn
	// Throw returns the diagnostic to the caller that started the tick.
	Throw
)

func (m WarnMode) String() string {
	switch m {
	case Off:
		return "off"
	case Warn:
		return "warn"
	case Throw:
		return "throw"
	default:
		return fmt.Sprintf("warnmode(%d)", m)
	}
}

// ParseWarnMode parses "off", "warn" or "throw". The empty string is Off.
func ParseWarnMode(s string) (WarnMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return Off, nil
	case "warn":
		return Warn, nil
	case "throw":
		return Throw, nil
	default:
		return Off, fmt.Errorf("invalid warn mode %q: must be one of off, warn, throw", s)
	}
}

// NodeID identifies a node within one Graph.
type NodeID uint64

// Runtime is the scope-bound view a step executes against.
//
// Implemented by the kernel's tick. Steps never hold on to a Runtime after
// they return.
type Runtime interface {
	// Context carries the scope and the barriers of the current root item.
	Context() context.Context

	// Read returns the current value of st in the running scope.
	Read(st *State) any

	// Write stores v for st and reports whether the value changed.
	Write(st *State, v any) bool

	// Override returns a per-scope replacement registered under key.
	Override(key any) (any, bool)

	// Launch runs body outside the tick. Its payload re-enters the scope as
	// a new root item for the settle node; the error is only reported to
	// hooks. after runs once that item's tick has finished.
	Launch(name string, settle NodeID, body func(ctx context.Context) (any, error), after func())
}

// StepFunc transforms a payload. Returning ok=false stops propagation to
// the node's outbound edges.
type StepFunc func(rt Runtime, payload any) (out any, ok bool)

// Node is an immutable executable step.
type Node struct {
	ID       NodeID
	Name     string
	Kind     string
	Priority Priority
	Step     StepFunc

	// Unused controls the diagnostic for a root dispatch that reaches no
	// active edge.
	Unused WarnMode

	// FailCheck controls how a panicking step is reported.
	FailCheck WarnMode
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s#%d)", n.Kind, n.Name, n.ID)
}
