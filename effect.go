package rill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/rill/internal/graph"
)

// Handler is the asynchronous body of an effect.
type Handler[P, R any] func(ctx context.Context, params P) (R, error)

// Status is the outcome of a settled call.
type Status string

const (
	StatusDone Status = "done"
	StatusFail Status = "fail"
)

// Finally is the payload of an effect's Finally event.
type Finally[P, R any] struct {
	Status Status
	Params P
	Result R
	Error  error
}

// DoneResult is the payload of an effect's Done event.
type DoneResult[P, R any] struct {
	Params P
	Result R
}

// FailResult is the payload of an effect's Fail event.
type FailResult[P any] struct {
	Params P
	Error  error
}

// Effect wraps an asynchronous handler. Every call settles exactly once,
// as Done or Fail, in a new tick of the scope that made the call.
type Effect[P, R any] struct {
	unitMeta

	entry  graph.NodeID
	params graph.NodeID
	settle graph.NodeID

	handler atomic.Pointer[Handler[P, R]]

	// prepare builds the body inside the tick. Set for attached effects.
	prepare func(rt graph.Runtime, p P) func(ctx context.Context) (R, error)

	finally  *Event[Finally[P, R]]
	done     *Event[DoneResult[P, R]]
	fail     *Event[FailResult[P]]
	doneData *Event[R]
	failData *Event[error]
	inFlight *Store[int]
	pending  *Store[bool]
}

// call is one invocation travelling through the effect's nodes.
type call[P, R any] struct {
	params P
	result R
	err    error
	done   chan struct{}
}

func newCall[P, R any](p P) *call[P, R] {
	return &call[P, R]{params: p, done: make(chan struct{})}
}

// NewEffect creates an effect. h may be nil and set later with Use.
func NewEffect[P, R any](name string, h Handler[P, R], opts ...Option) *Effect[P, R] {
	o := buildOptions(opts)
	fx := newEffect[P, R](newMeta(KindEffect, name, o))
	if h != nil {
		fx.handler.Store(&h)
	}
	if o.domain != nil {
		o.domain.register(fx)
	}
	return fx
}

func newEffect[P, R any](m unitMeta) *Effect[P, R] {
	fx := &Effect[P, R]{unitMeta: m}
	g := fx.graph

	fx.entry = g.Add(&graph.Node{
		Name:      fx.typ,
		Kind:      "effect",
		Priority:  graph.Child,
		FailCheck: graph.Warn,
		Step: func(_ graph.Runtime, payload any) (any, bool) {
			if c, ok := payload.(*call[P, R]); ok {
				return c, true
			}
			return newCall[P, R](as[P](payload)), true
		},
	})
	fx.params = g.Add(&graph.Node{
		Name:      fx.typ + ".params",
		Kind:      "effect",
		Priority:  graph.Child,
		FailCheck: graph.Warn,
		Step: func(_ graph.Runtime, payload any) (any, bool) {
			return payload.(*call[P, R]).params, true
		},
	})
	runner := g.Add(&graph.Node{
		Name:      fx.typ + ".run",
		Kind:      "effect",
		Priority:  graph.Effect,
		FailCheck: graph.Warn,
		Step:      fx.run,
	})
	fx.settle = g.Add(&graph.Node{
		Name:      fx.typ + ".finally",
		Kind:      "settle",
		Priority:  graph.Child,
		FailCheck: graph.Warn,
		Step: func(_ graph.Runtime, payload any) (any, bool) {
			return payload.(*call[P, R]).outcome(), true
		},
	})
	g.Link(fx.entry, fx.params)
	g.Link(fx.entry, runner)

	fx.finally = derivedEvent[Finally[P, R]](derivedMeta(KindEvent, fx.typ+".finally", &fx.unitMeta), fx.settle)
	fx.done = filterMap(fx.finally, fx.typ+".done", func(f Finally[P, R]) (DoneResult[P, R], bool) {
		return DoneResult[P, R]{Params: f.Params, Result: f.Result}, f.Status == StatusDone
	})
	fx.fail = filterMap(fx.finally, fx.typ+".fail", func(f Finally[P, R]) (FailResult[P], bool) {
		return FailResult[P]{Params: f.Params, Error: f.Error}, f.Status == StatusFail
	})
	fx.doneData = filterMap(fx.done, fx.typ+".doneData", func(d DoneResult[P, R]) (R, bool) {
		return d.Result, true
	})
	fx.failData = filterMap(fx.fail, fx.typ+".failData", func(f FailResult[P]) (error, bool) {
		return f.Error, true
	})

	fx.inFlight = newStore[int](derivedMeta(KindStore, fx.typ+".inFlight", &fx.unitMeta), &graph.State{
		Name:    fx.typ + ".inFlight",
		Default: 0,
		Hidden:  true,
	})
	On(fx.inFlight, Source[P](fx), func(n int, _ P) int { return n + 1 })
	On(fx.inFlight, Source[Finally[P, R]](fx.finally), func(n int, _ Finally[P, R]) int { return n - 1 })
	fx.pending = Map(fx.inFlight, func(n int) bool { return n > 0 }, WithName(fx.typ+".pending"))
	return fx
}

func (c *call[P, R]) outcome() Finally[P, R] {
	if c.err != nil {
		return Finally[P, R]{Status: StatusFail, Params: c.params, Error: c.err}
	}
	return Finally[P, R]{Status: StatusDone, Params: c.params, Result: c.result}
}

// run launches the body of one call. The call's done channel closes once
// its settle tick has finished.
func (fx *Effect[P, R]) run(rt graph.Runtime, payload any) (any, bool) {
	c := payload.(*call[P, R])
	body := fx.body(rt, c.params)
	rt.Launch(fx.typ, fx.settle, func(ctx context.Context) (any, error) {
		c.result, c.err = body(ctx)
		return c, c.err
	}, func() { close(c.done) })
	return nil, false
}

func (fx *Effect[P, R]) body(rt graph.Runtime, p P) func(ctx context.Context) (R, error) {
	if fx.prepare != nil {
		return fx.prepare(rt, p)
	}
	h := fx.handlerFor(rt)
	return func(ctx context.Context) (R, error) {
		return invoke(ctx, fx.typ, h, p)
	}
}

// handlerFor prefers the scope's handler over the one set with Use.
func (fx *Effect[P, R]) handlerFor(rt graph.Runtime) Handler[P, R] {
	if v, ok := rt.Override(fx); ok {
		if h, ok := v.(Handler[P, R]); ok {
			return h
		}
	}
	if h := fx.handler.Load(); h != nil {
		return *h
	}
	return nil
}

// invoke runs h, turning a panic into a *PanicError failure.
func invoke[P, R any](ctx context.Context, name string, h Handler[P, R], p P) (result R, err error) {
	if h == nil {
		return result, ErrNoHandler
	}
	defer func() {
		if r := recover(); r != nil {
			var zero R
			result, err = zero, &PanicError{Effect: name, Value: r}
		}
	}()
	return h(ctx, p)
}

func (fx *Effect[P, R]) outNode() graph.NodeID { return fx.params }
func (fx *Effect[P, R]) inNode() graph.NodeID { return fx.entry }

func (*Effect[P, R]) emits(P) {}
func (*Effect[P, R]) accepts(P) {}

// Use replaces the handler. Scopes forked with WithHandler keep theirs.
func (fx *Effect[P, R]) Use(h Handler[P, R]) *Effect[P, R] {
	if fx.prepare != nil {
		configPanic("use", fx, "attached effects delegate to their inner effect")
	}
	fx.handler.Store(&h)
	return fx
}

// Handler returns the handler set with Use, or nil.
func (fx *Effect[P, R]) Handler() Handler[P, R] {
	if h := fx.handler.Load(); h != nil {
		return *h
	}
	return nil
}

// Finally fires once per call with its outcome.
func (fx *Effect[P, R]) Finally() *Event[Finally[P, R]] { return fx.finally }

// Done fires for successful calls.
func (fx *Effect[P, R]) Done() *Event[DoneResult[P, R]] { return fx.done }

// Fail fires for failed calls.
func (fx *Effect[P, R]) Fail() *Event[FailResult[P]] { return fx.fail }

// DoneData fires with the result of successful calls.
func (fx *Effect[P, R]) DoneData() *Event[R] { return fx.doneData }

// FailData fires with the error of failed calls.
func (fx *Effect[P, R]) FailData() *Event[error] { return fx.failData }

// InFlight counts the calls that have started and not yet settled.
func (fx *Effect[P, R]) InFlight() *Store[int] { return fx.inFlight }

// Pending reports whether any call is in flight.
func (fx *Effect[P, R]) Pending() *Store[bool] { return fx.pending }

// Watch calls fn with the params of every call.
func (fx *Effect[P, R]) Watch(fn func(P)) *Subscription {
	return watch(&fx.unitMeta, fx.params, func(_ graph.Runtime, v P) { fn(v) }, nil)
}

// WatchContext is Watch with the tick context.
func (fx *Effect[P, R]) WatchContext(fn func(context.Context, P)) *Subscription {
	return watch(&fx.unitMeta, fx.params, func(rt graph.Runtime, v P) { fn(rt.Context(), v) }, nil)
}

// Subscribe is Watch with a completion callback.
func (fx *Effect[P, R]) Subscribe(sub Subscriber[P]) *Subscription {
	return watch(&fx.unitMeta, fx.params, func(_ graph.Runtime, v P) {
		if sub.Next != nil {
			sub.Next(v)
		}
	}, sub.Complete)
}

// Call prepares a call with p.
func (fx *Effect[P, R]) Call(p P) *EffectCall[P, R] {
	return &EffectCall[P, R]{fx: fx, c: newCall[P, R](p)}
}

// Run calls the effect in the scope carried by ctx, or in the default
// scope, and waits for its result.
//
// A watcher cannot wait for an effect of its own scope: with the tick
// context Run returns ErrWaitInTick and the effect is not called. Use
// Call(p).Send from watchers, or call Run from a handler.
func (fx *Effect[P, R]) Run(ctx context.Context, p P) (R, error) {
	return fx.Call(p).Promise(ctx)
}

// dispatch implements dispatcher.
func (fx *Effect[P, R]) dispatch(payload any) (graph.NodeID, any, func() Settled, error) {
	p, err := checkParams[P](fx, payload)
	if err != nil {
		return 0, nil, nil, err
	}
	c := newCall[P, R](p)
	return fx.entry, c, func() Settled {
		select {
		case <-c.done:
		default:
			return Settled{Status: StatusFail, Err: errors.New("rill: effect call did not settle")}
		}
		if c.err != nil {
			return Settled{Status: StatusFail, Err: c.err}
		}
		return Settled{Status: StatusDone, Value: c.result}
	}, nil
}

// EffectCall is a prepared effect call. It is sent at most once.
type EffectCall[P, R any] struct {
	fx *Effect[P, R]
	c  *call[P, R]

	once    sync.Once
	sendErr error
}

// Send starts the call without waiting for it to settle.
func (ec *EffectCall[P, R]) Send(ctx context.Context) error {
	ec.once.Do(func() {
		s, err := scopeFor(ctx, ec.fx)
		if err != nil {
			ec.sendErr = err
			return
		}
		ec.sendErr = s.core.Dispatch(ctx, ec.fx.entry, ec.c)
	})
	return ec.sendErr
}

func (ec *EffectCall[P, R]) wait(ctx context.Context) error {
	if s, err := scopeFor(ctx, ec.fx); err == nil && s.core.InTick(ctx) {
		return fmt.Errorf("call %s: %w", ec.fx.typ, ErrWaitInTick)
	}
	if err := ec.Send(ctx); err != nil {
		return err
	}
	select {
	case <-ec.c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Promise sends the call and waits for its result. Like Run, it returns
// ErrWaitInTick when ctx belongs to a running tick of the call's scope.
func (ec *EffectCall[P, R]) Promise(ctx context.Context) (R, error) {
	if err := ec.wait(ctx); err != nil {
		var zero R
		return zero, err
	}
	return ec.c.result, ec.c.err
}

// Done sends the call and waits for a successful outcome.
func (ec *EffectCall[P, R]) Done(ctx context.Context) (DoneResult[P, R], error) {
	r, err := ec.Promise(ctx)
	if err != nil {
		return DoneResult[P, R]{}, err
	}
	return DoneResult[P, R]{Params: ec.c.params, Result: r}, nil
}

// Fail sends the call and waits for a failed outcome. A successful call
// returns ErrNotFailed.
func (ec *EffectCall[P, R]) Fail(ctx context.Context) (FailResult[P], error) {
	if err := ec.wait(ctx); err != nil {
		return FailResult[P]{}, err
	}
	if ec.c.err == nil {
		return FailResult[P]{}, ErrNotFailed
	}
	return FailResult[P]{Params: ec.c.params, Error: ec.c.err}, nil
}
