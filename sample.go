package rill

import (
	"reflect"

	"github.com/roach88/rill/internal/graph"
)

// SampleConfig describes a sample. At least one of Source and Clock is
// required. Without Clock, updates of Source are the clock. Without Fn,
// the source value (or the clock payload when there is no Source) is
// forwarded and must be assignable to R.
type SampleConfig[S, C, R any] struct {
	Source *Store[S]
	Clock  Source[C]
	Fn     func(source S, clock C) R
	Target Target[R]
	Name   string
}

// Sample builds a sampler: on every firing of the clock it reads the
// current value of Source, after all reducers and derivations of the same
// tick have run, and fires the returned event (and Target) with the
// result.
func Sample[S, C, R any](cfg SampleConfig[S, C, R]) *Event[R] {
	var units []Unit
	var clock emitter
	switch {
	case cfg.Clock != nil:
		clock = cfg.Clock
		units = append(units, cfg.Clock)
	case cfg.Source != nil:
		clock = cfg.Source
	default:
		configPanic("sample", nil, "either source or clock is required")
	}
	if cfg.Source != nil {
		units = append(units, cfg.Source)
	}
	if cfg.Target != nil {
		units = append(units, cfg.Target)
	}
	g := sameGraph("sample", units...)

	fn := cfg.Fn
	if fn == nil {
		fn = forwardFn[S, C, R](cfg.Source != nil, clock)
	}

	name := cfg.Name
	if name == "" {
		name = clock.GetType() + ".sample"
	}

	source := cfg.Source
	id := g.Add(&graph.Node{
		Name:      name,
		Kind:      "sample",
		Priority:  graph.Sampler,
		FailCheck: graph.Warn,
		Step: func(rt graph.Runtime, payload any) (any, bool) {
			var s S
			if source != nil {
				s = as[S](rt.Read(source.state))
			}
			return fn(s, as[C](payload)), true
		},
	})
	g.Link(clock.outNode(), id)
	if cfg.Target != nil {
		g.Link(id, cfg.Target.inNode())
	}
	return derivedEvent[R](derivedMeta(KindEvent, name, clock.meta()), id)
}

// forwardFn is the sample function used when none is given.
func forwardFn[S, C, R any](fromSource bool, clock Unit) func(S, C) R {
	from := reflect.TypeFor[C]()
	if fromSource {
		from = reflect.TypeFor[S]()
	}
	to := reflect.TypeFor[R]()
	if !from.AssignableTo(to) {
		configPanic("sample", clock, "%s is not assignable to target type %s; provide Fn", from, to)
	}
	if fromSource {
		return func(s S, _ C) R { return as[R](any(s)) }
	}
	return func(_ S, c C) R { return as[R](any(c)) }
}

// Trigger returns an event that, when fired, calls target with
// query(current value of source).
func Trigger[S, R any](source *Store[S], target Target[R], query func(S) R) *Event[struct{}] {
	sameGraph("trigger", source, target)
	e := newEvent[struct{}](derivedMeta(KindEvent, source.typ+".trigger", &source.unitMeta))
	Sample(SampleConfig[S, struct{}, R]{
		Source: source,
		Clock:  e,
		Fn:     func(s S, _ struct{}) R { return query(s) },
		Target: target,
		Name:   target.GetType() + ".trigger",
	})
	return e
}
