package rill

import (
	"sync"

	"github.com/roach88/rill/internal/graph"
)

// Kind identifies the variant of a Unit.
type Kind string

const (
	KindEvent  Kind = "event"
	KindStore  Kind = "store"
	KindEffect Kind = "effect"
	KindDomain Kind = "domain"
)

// Unit is any graph-participating entity.
type Unit interface {
	Kind() Kind
	Name() string

	// GetType returns the stable qualified tag of the unit, prefixed with
	// its domain path ("app/cart/add").
	GetType() string

	meta() *unitMeta
}

// Source is a unit whose firings carry values of type T.
type Source[T any] interface {
	Unit
	outNode() graph.NodeID
	emits(T)
}

// Target is a unit that can be fired with values of type T.
type Target[T any] interface {
	Unit
	inNode() graph.NodeID
	accepts(T)
}

// emitter is the untyped view of a Source.
type emitter interface {
	Unit
	outNode() graph.NodeID
}

type unitMeta struct {
	kind   Kind
	name   string
	typ    string
	graph  *graph.Graph
	domain *Domain
	config EventConfig
}

func (m *unitMeta) Kind() Kind { return m.kind }
func (m *unitMeta) Name() string { return m.name }
func (m *unitMeta) GetType() string { return m.typ }
func (m *unitMeta) meta() *unitMeta { return m }

// newMeta resolves the graph, qualified tag and configuration of a new
// unit from its options.
func newMeta(kind Kind, name string, o *options) unitMeta {
	m := unitMeta{
		kind:   kind,
		name:   name,
		typ:    name,
		graph:  graph.Default,
		config: DefaultConfig,
	}
	if d := o.domain; d != nil {
		m.graph = d.graph
		m.domain = d
		m.config = d.config
		m.typ = d.typ + "/" + name
	}
	if o.config != nil {
		m.config = *o.config
	}
	return m
}

// derivedMeta describes a unit created by an operator from parent.
func derivedMeta(kind Kind, name string, parent *unitMeta) unitMeta {
	return unitMeta{
		kind:   kind,
		name:   name,
		typ:    name,
		graph:  parent.graph,
		config: parent.config,
	}
}

// sameGraph returns the graph shared by units, panicking with a
// *ConfigError if they come from different graphs.
func sameGraph(op string, units ...Unit) *graph.Graph {
	var g *graph.Graph
	for _, u := range units {
		if u == nil {
			continue
		}
		ug := u.meta().graph
		if g == nil {
			g = ug
			continue
		}
		if ug != g {
			panic(&ConfigError{Op: op, Unit: u.GetType(), Message: "units belong to different graphs", Err: ErrForeignUnit})
		}
	}
	if g == nil {
		return graph.Default
	}
	return g
}

// as converts a payload to T. Nil and mismatched payloads become the zero
// value.
func as[T any](v any) T {
	t, _ := v.(T)
	return t
}

// Subscriber receives the values of a unit until Unsubscribe.
type Subscriber[T any] struct {
	Next     func(T)
	Complete func()
}

// Subscription detaches a watcher from its unit.
type Subscription struct {
	graph    *graph.Graph
	from, to graph.NodeID
	complete func()
	once     sync.Once
}

// Unsubscribe removes the watcher. Ticks already running may still call
// it once. Complete, if set, runs exactly once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.graph.Unlink(s.from, s.to)
		if s.complete != nil {
			s.complete()
		}
	})
}

// watch links an effect-priority watcher node to from.
func watch[T any](m *unitMeta, from graph.NodeID, fn func(graph.Runtime, T), complete func()) *Subscription {
	g := m.graph
	id := g.Add(&graph.Node{
		Name:      m.name + ".watch",
		Kind:      "watch",
		Priority:  graph.Effect,
		FailCheck: m.config.WatchFailCheck,
		Step: func(rt graph.Runtime, payload any) (any, bool) {
			fn(rt, as[T](payload))
			return nil, false
		},
	})
	g.Link(from, id)
	return &Subscription{graph: g, from: from, to: id, complete: complete}
}
