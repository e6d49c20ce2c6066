package rill

import (
	"errors"
	"fmt"

	"github.com/roach88/rill/internal/engine"
	"github.com/roach88/rill/internal/graph"
)

var (
	// ErrNoScope is returned when a scope-bound operation finds no scope in
	// its context.
	ErrNoScope = errors.New("rill: no scope found in context")

	// ErrForeignUnit is returned when a unit does not belong to the graph
	// of the scope it is used with.
	ErrForeignUnit = errors.New("rill: unit belongs to a different graph")

	// ErrNoHandler is the failure of an effect called without a handler.
	ErrNoHandler = errors.New("rill: effect has no handler")

	// ErrNotFailed is returned by EffectCall.Fail when the call succeeded.
	ErrNotFailed = errors.New("rill: effect call did not fail")

	// ErrWaitInTick is returned by blocking calls made with the context of
	// a running tick. The work they wait for is queued behind that tick, so
	// they would never return. Use Send or Dispatch there instead.
	ErrWaitInTick = errors.New("rill: cannot wait for a settlement from inside a tick of the same scope")
)

// ConfigError reports an invalid graph construction. Constructors and
// operators panic with it; Fork returns it.
type ConfigError struct {
	Op      string
	Unit    string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("rill: %s %s: %s", e.Op, e.Unit, e.Message)
	}
	return fmt.Sprintf("rill: %s: %s", e.Op, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configPanic(op string, u Unit, format string, args ...any) {
	name := ""
	if u != nil {
		name = u.GetType()
	}
	panic(&ConfigError{Op: op, Unit: name, Message: fmt.Sprintf(format, args...)})
}

// PanicError is the failure of an effect whose handler panicked.
type PanicError struct {
	Effect string
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rill: effect %s panicked: %v", e.Effect, e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// RuntimeError is a diagnostic raised while running a tick.
type RuntimeError = engine.RuntimeError

// CollisionError reports two stores registered under one sid.
type CollisionError = graph.CollisionError

// IsStepError reports whether err holds a panicking step.
func IsStepError(err error) bool {
	return engine.IsStepError(err)
}

// IsQuotaError reports whether err holds an aborted runaway tick.
func IsQuotaError(err error) bool {
	return engine.IsQuotaError(err)
}

// IsUnusedError reports whether err holds a dispatch that reached nothing.
func IsUnusedError(err error) bool {
	return engine.IsUnusedError(err)
}

// Collisions returns the sid collisions of the default graph.
func Collisions() []*CollisionError {
	return graph.Default.Collisions()
}
