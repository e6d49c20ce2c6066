package rill

import (
	"context"
	"fmt"

	"github.com/roach88/rill/internal/engine"
	"github.com/roach88/rill/internal/graph"
)

// Settled is the outcome of AllSettled.
type Settled struct {
	Status Status
	Value  any
	Err    error
}

// SettleOption configures AllSettled.
type SettleOption func(*settleConfig)

type settleConfig struct {
	scope  *Scope
	params any
}

// InScope runs the call in s instead of the scope carried by ctx.
func InScope(s *Scope) SettleOption {
	return func(c *settleConfig) {
		c.scope = s
	}
}

// WithParams sets the payload of the call.
func WithParams(v any) SettleOption {
	return func(c *settleConfig) {
		c.params = v
	}
}

// dispatcher is implemented by units that can be fired by AllSettled.
type dispatcher interface {
	Unit
	dispatch(payload any) (node graph.NodeID, arg any, result func() Settled, err error)
}

// AllSettled fires u and waits until every tick and effect caused by
// that call has finished, including effects started by the outcomes of
// other effects. Work started independently on the same scope does not
// hold it.
//
// For effects the outcome of the call is returned; events and stores
// report StatusDone with the payload. A non-nil error alongside a result
// holds throw-mode diagnostics of the first tick.
//
// AllSettled blocks. Called from a watcher with the tick context of the
// same scope it returns ErrWaitInTick without firing u.
func AllSettled(ctx context.Context, u Unit, opts ...SettleOption) (Settled, error) {
	cfg := &settleConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := cfg.scope
	if s == nil {
		var ok bool
		if s, ok = ScopeFrom(ctx); !ok {
			return Settled{}, fmt.Errorf("allSettled %s: %w", u.GetType(), ErrNoScope)
		}
	}
	if u.meta().graph != s.graph {
		return Settled{}, fmt.Errorf("allSettled %s: %w", u.GetType(), ErrForeignUnit)
	}

	if s.core.InTick(ctx) {
		return Settled{}, fmt.Errorf("allSettled %s: %w", u.GetType(), ErrWaitInTick)
	}

	d, ok := u.(dispatcher)
	if !ok {
		return Settled{}, &ConfigError{Op: "allSettled", Unit: u.GetType(), Message: "unit cannot be dispatched"}
	}
	node, arg, result, err := d.dispatch(cfg.params)
	if err != nil {
		return Settled{}, err
	}

	b := engine.NewBarrier()
	dctx := engine.WithBarrier(WithScope(ctx, s), b)
	dispatchErr := s.core.Dispatch(dctx, node, arg)

	if err := b.Wait(ctx); err != nil {
		return Settled{}, err
	}
	return result(), dispatchErr
}
