package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts the steps of one tick and enforces a maximum.
//
// Each tick gets its own enforcer. The quota is checked before every step.
// It catches runaway propagation such as a sampler whose target feeds its
// own clock, which would otherwise never drain.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a quota enforcer with the given limit.
// A limit of zero or less disables the check.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates it against the limit.
func (q *QuotaEnforcer) Check(scopeID string, seq int64) error {
	q.current++
	if q.maxSteps > 0 && q.current > q.maxSteps {
		return &StepsExceededError{
			Scope: scopeID,
			Seq:   seq,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a tick exceeds the step quota.
// The remaining steps of that tick are dropped.
type StepsExceededError struct {
	Scope string
	Seq   int64
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("scope %s tick %d exceeded max steps quota: %d steps > %d limit",
		e.Scope, e.Seq, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
