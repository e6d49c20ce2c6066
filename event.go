package rill

import (
	"context"
	"fmt"

	"github.com/roach88/rill/internal/graph"
)

// Event is a stateless pass-through unit.
type Event[T any] struct {
	unitMeta
	node graph.NodeID

	// derived events are produced by operators and cannot be called.
	derived bool
}

// NewEvent creates an event.
func NewEvent[T any](name string, opts ...Option) *Event[T] {
	o := buildOptions(opts)
	e := newEvent[T](newMeta(KindEvent, name, o))
	if o.domain != nil {
		o.domain.register(e)
	}
	return e
}

func newEvent[T any](m unitMeta) *Event[T] {
	e := &Event[T]{unitMeta: m}
	e.node = e.graph.Add(&graph.Node{
		Name:      e.typ,
		Kind:      "event",
		Priority:  graph.Child,
		Unused:    e.config.Unused,
		FailCheck: graph.Warn,
		Step:      passThrough,
	})
	return e
}

func derivedEvent[T any](m unitMeta, node graph.NodeID) *Event[T] {
	return &Event[T]{unitMeta: m, node: node, derived: true}
}

func passThrough(_ graph.Runtime, payload any) (any, bool) {
	return payload, true
}

func (e *Event[T]) outNode() graph.NodeID { return e.node }

func (e *Event[T]) inNode() graph.NodeID {
	if e.derived {
		configPanic("target", e, "derived events cannot be fired")
	}
	return e.node
}

func (*Event[T]) emits(T) {}
func (*Event[T]) accepts(T) {}

// Derived reports whether the event was produced by an operator.
func (e *Event[T]) Derived() bool {
	return e.derived
}

// Call prepares a dispatch of p.
func (e *Event[T]) Call(p T) *Call[T] {
	if e.derived {
		configPanic("call", e, "derived events cannot be called")
	}
	return &Call[T]{unit: e, node: e.node, payload: p}
}

// Dispatch fires the event with p in the scope carried by ctx, or in the
// default scope of the event's graph.
func (e *Event[T]) Dispatch(ctx context.Context, p T) error {
	return e.Call(p).Send(ctx)
}

// Watch calls fn for every firing of the event.
func (e *Event[T]) Watch(fn func(T)) *Subscription {
	return watch(&e.unitMeta, e.node, func(_ graph.Runtime, v T) { fn(v) }, nil)
}

// WatchContext is Watch with the tick context, which carries the scope.
// Dispatches made with it run in the same scope and count toward the same
// AllSettled call. They are queued behind the current tick and return
// without waiting for it; dispatching into the same scope with any other
// context would wait for the watcher itself.
func (e *Event[T]) WatchContext(fn func(context.Context, T)) *Subscription {
	return watch(&e.unitMeta, e.node, func(rt graph.Runtime, v T) { fn(rt.Context(), v) }, nil)
}

// Subscribe is Watch with a completion callback.
func (e *Event[T]) Subscribe(sub Subscriber[T]) *Subscription {
	return watch(&e.unitMeta, e.node, func(_ graph.Runtime, v T) {
		if sub.Next != nil {
			sub.Next(v)
		}
	}, sub.Complete)
}

// dispatch implements dispatcher.
func (e *Event[T]) dispatch(payload any) (graph.NodeID, any, func() Settled, error) {
	if e.derived {
		return 0, nil, nil, &ConfigError{Op: "dispatch", Unit: e.typ, Message: "derived events cannot be called"}
	}
	p, err := checkParams[T](e, payload)
	if err != nil {
		return 0, nil, nil, err
	}
	return e.node, p, func() Settled { return Settled{Status: StatusDone, Value: p} }, nil
}

// Call is a prepared dispatch.
type Call[T any] struct {
	unit    Unit
	node    graph.NodeID
	payload any
}

// Send runs the dispatch in the scope carried by ctx, or in the default
// scope. The returned error holds throw-mode diagnostics of the tick.
func (c *Call[T]) Send(ctx context.Context) error {
	s, err := scopeFor(ctx, c.unit)
	if err != nil {
		return err
	}
	return s.core.Dispatch(ctx, c.node, c.payload)
}

// checkParams converts a dynamically typed payload for u. Nil becomes
// the zero value.
func checkParams[T any](u Unit, payload any) (T, error) {
	var zero T
	if payload == nil {
		return zero, nil
	}
	v, ok := payload.(T)
	if !ok {
		return zero, fmt.Errorf("rill: %s expects %T, got %T", u.GetType(), zero, payload)
	}
	return v, nil
}
