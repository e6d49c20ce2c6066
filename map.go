package rill

import (
	"github.com/roach88/rill/internal/graph"
)

// storeRef is the untyped view of a Store used by derivations.
type storeRef interface {
	emitter
	stateOf() *graph.State
}

// Map derives a store from s. The derived store recomputes in the pure
// band whenever s changes and skips propagation when the result is
// unchanged. A panicking fn is reported and stops propagation for that
// tick.
func Map[T, R any](s *Store[T], fn func(T) R, opts ...Option) *Store[R] {
	o := buildOptions(opts)
	if o.name == "" {
		o.name = s.typ + ".map"
	}
	return deriveStore("map", graph.Pure, []storeRef{s}, func(read func(*graph.State) any) R {
		return fn(as[T](read(s.state)))
	}, o, nil)
}

// MapEvent derives an event carrying fn(v) for every firing of src.
func MapEvent[T, R any](src Source[T], fn func(T) R) *Event[R] {
	return filterMap(src, src.GetType()+".map", func(v T) (R, bool) {
		return fn(v), true
	})
}

// Filter derives an event that fires only when pred holds.
func Filter[T any](src Source[T], pred func(T) bool) *Event[T] {
	return filterMap(src, src.GetType()+".filter", func(v T) (T, bool) {
		return v, pred(v)
	})
}

// FilterMap derives an event carrying the results for which fn returns
// true.
func FilterMap[T, R any](src Source[T], fn func(T) (R, bool)) *Event[R] {
	return filterMap(src, src.GetType()+".filterMap", fn)
}

func filterMap[T, R any](src Source[T], name string, fn func(T) (R, bool)) *Event[R] {
	m := src.meta()
	id := m.graph.Add(&graph.Node{
		Name:      name,
		Kind:      "map",
		Priority:  graph.Pure,
		FailCheck: graph.Warn,
		Step: func(_ graph.Runtime, payload any) (any, bool) {
			v, ok := fn(as[T](payload))
			return v, ok
		},
	})
	m.graph.Link(src.outNode(), id)
	return derivedEvent[R](derivedMeta(KindEvent, name, m), id)
}

// deriveStore builds a derived store over parents. compute reads parent
// values through read; it runs in band prio whenever a parent changes.
func deriveStore[R any](op string, prio graph.Priority, parents []storeRef, compute func(read func(*graph.State) any) R, o *options, equal func(a, b any) bool) *Store[R] {
	if len(parents) == 0 {
		configPanic(op, nil, "at least one store is required")
	}
	units := make([]Unit, len(parents))
	for i, p := range parents {
		units[i] = p
	}
	g := sameGraph(op, units...)
	if o.sid != "" {
		configPanic(op, parents[0], "derived stores cannot have a sid")
	}
	if o.equal != nil {
		equal = o.equal
	}

	name := o.name
	st := &graph.State{
		Name:    name,
		Default: defaultOf(name, compute),
		Derive: func(read func(*graph.State) any) any {
			return compute(read)
		},
		Equal: equal,
	}
	s := newStore[R](derivedMeta(KindStore, name, parents[0].meta()), st)

	id := g.Add(&graph.Node{
		Name:      name,
		Kind:      op,
		Priority:  prio,
		FailCheck: graph.Warn,
		Step: func(rt graph.Runtime, _ any) (any, bool) {
			v := compute(rt.Read)
			if !rt.Write(st, v) {
				return nil, false
			}
			return v, true
		},
	})
	for _, p := range parents {
		g.Depend(p.stateOf(), st)
		g.Link(p.outNode(), id)
	}
	g.Link(id, s.updates)
	return s
}

// defaultOf computes a derived default from the parents' defaults.
func defaultOf[R any](name string, compute func(read func(*graph.State) any) R) (v R) {
	defer func() {
		if r := recover(); r != nil {
			logger().Warn("derived default failed, using zero value",
				"store", name,
				"panic", r,
			)
			var zero R
			v = zero
		}
	}()
	return compute(func(st *graph.State) any { return st.Default })
}
