package rill

import (
	"context"
	"reflect"

	"github.com/roach88/rill/internal/graph"
)

// AttachConfig describes an attached effect. Without MapParams the
// source value (or the params when there is no Source) is passed to
// Effect and must be assignable to Q.
type AttachConfig[S, P, Q, R any] struct {
	Source    *Store[S]
	Effect    *Effect[Q, R]
	MapParams func(params P, source S) Q
	Name      string
}

// Attach builds an effect that reads Source when called, maps its params
// with MapParams and delegates to Effect. MapParams runs inside the tick
// that starts the call, so it sees the state of that tick. The attached
// effect settles with the inner call's outcome.
func Attach[S, P, Q, R any](cfg AttachConfig[S, P, Q, R]) *Effect[P, R] {
	if cfg.Effect == nil {
		configPanic("attach", nil, "effect is required")
	}
	inner := cfg.Effect
	if cfg.Source != nil {
		sameGraph("attach", cfg.Source, inner)
	}

	mapParams := cfg.MapParams
	if mapParams == nil {
		mapParams = attachForward[S, P, Q](cfg.Source != nil, inner)
	}

	name := cfg.Name
	if name == "" {
		name = inner.typ + ".attach"
	}

	fx := newEffect[P, R](derivedMeta(KindEffect, name, &inner.unitMeta))
	source := cfg.Source
	fx.prepare = func(rt graph.Runtime, p P) (body func(ctx context.Context) (R, error)) {
		defer func() {
			if r := recover(); r != nil {
				err := &PanicError{Effect: name, Value: r}
				body = func(context.Context) (R, error) {
					var zero R
					return zero, err
				}
			}
		}()

		var s S
		if source != nil {
			s = as[S](rt.Read(source.state))
		}
		q := mapParams(p, s)
		return func(ctx context.Context) (R, error) {
			return inner.Call(q).Promise(ctx)
		}
	}
	return fx
}

func attachForward[S, P, Q any](fromSource bool, inner Unit) func(P, S) Q {
	from := reflect.TypeFor[P]()
	if fromSource {
		from = reflect.TypeFor[S]()
	}
	to := reflect.TypeFor[Q]()
	if !from.AssignableTo(to) {
		configPanic("attach", inner, "%s is not assignable to effect params %s; provide MapParams", from, to)
	}
	if fromSource {
		return func(_ P, s S) Q { return as[Q](any(s)) }
	}
	return func(p P, _ S) Q { return as[Q](any(p)) }
}
