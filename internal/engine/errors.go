package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while executing a tick.
//
// Runtime errors include:
//   - Step panic: a reducer, derivation or watcher panicked
//   - Quota exceeded: a tick exceeded the step limit
//   - Unused unit: a dispatch reached no active edge
//   - Missing node: a root item referenced a node the graph does not hold
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Scope identifies the affected scope.
	Scope string

	// Node names the node involved, if any.
	Node string

	// Seq is the tick sequence number.
	Seq int64

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStepPanic indicates a step panicked.
	ErrCodeStepPanic RuntimeErrorCode = "STEP_PANIC"

	// ErrCodeQuotaExceeded indicates the tick exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeUnusedUnit indicates a dispatch with no active edge.
	ErrCodeUnusedUnit RuntimeErrorCode = "UNUSED_UNIT"

	// ErrCodeMissingNode indicates a node id unknown to the scope's graph.
	ErrCodeMissingNode RuntimeErrorCode = "MISSING_NODE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Scope != "" && e.Node != "" {
		return fmt.Sprintf("%s: %s (scope=%s, node=%s)", e.Code, e.Message, e.Scope, e.Node)
	}
	if e.Scope != "" {
		return fmt.Sprintf("%s: %s (scope=%s)", e.Code, e.Message, e.Scope)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsStepError returns true if the error is a step panic.
func IsStepError(err error) bool {
	return hasCode(err, ErrCodeStepPanic)
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsUnusedError returns true if the error reports a dispatch with no
// active edge.
func IsUnusedError(err error) bool {
	return hasCode(err, ErrCodeUnusedUnit)
}

// NewStepError creates a RuntimeError for a recovered panic.
func NewStepError(scope, node string, seq int64, recovered any) *RuntimeError {
	re := &RuntimeError{
		Code:    ErrCodeStepPanic,
		Message: fmt.Sprintf("step panicked: %v", recovered),
		Scope:   scope,
		Node:    node,
		Seq:     seq,
	}
	if err, ok := recovered.(error); ok {
		re.Err = err
	}
	return re
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(scope string, seq int64, cause *StepsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("tick exceeded max steps (%d > %d)", cause.Steps, cause.Limit),
		Scope:   scope,
		Seq:     seq,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", cause.Steps),
			"max_steps": fmt.Sprintf("%d", cause.Limit),
		},
		Err: cause,
	}
}

// NewUnusedError creates a RuntimeError for a dispatch that reached no
// active edge.
func NewUnusedError(scope, node string, seq int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnusedUnit,
		Message: "unit dispatched with no subscribers",
		Scope:   scope,
		Node:    node,
		Seq:     seq,
	}
}

// NewMissingNodeError creates a RuntimeError for an unknown node id.
func NewMissingNodeError(scope string, id uint64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMissingNode,
		Message: fmt.Sprintf("node %d is not part of this scope's graph", id),
		Scope:   scope,
	}
}
