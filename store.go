package rill

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/rill/internal/graph"
)

// Store holds one value per scope.
type Store[T any] struct {
	unitMeta
	state   *graph.State
	updates graph.NodeID

	setOnce sync.Once
	setter  graph.NodeID

	updatesOnce  sync.Once
	updatesEvent *Event[T]

	mu       sync.Mutex
	bindings map[graph.NodeID]graph.NodeID
}

// NewStore creates a store with the given initial value.
func NewStore[T any](initial T, opts ...Option) *Store[T] {
	o := buildOptions(opts)
	name := o.name
	if name == "" {
		name = o.sid
	}
	if name == "" {
		name = "store"
	}

	m := newMeta(KindStore, name, o)
	s := newStore[T](m, &graph.State{
		Name:    m.typ,
		SID:     o.sid,
		Default: initial,
		Equal:   o.equal,
		Coerce:  coerce[T],
	})

	if o.sid != "" {
		if err := s.graph.RegisterSID(s.state); err != nil {
			logger().Warn("sid collision, last registration wins",
				"sid", o.sid,
				"store", s.typ,
				"error", err,
			)
		}
	}
	if o.domain != nil {
		o.domain.register(s)
	}
	return s
}

func newStore[T any](m unitMeta, st *graph.State) *Store[T] {
	s := &Store[T]{
		unitMeta: m,
		state:    st,
		bindings: make(map[graph.NodeID]graph.NodeID),
	}
	s.updates = s.graph.Add(&graph.Node{
		Name:      m.typ + ".updates",
		Kind:      "store",
		Priority:  graph.Pure,
		FailCheck: graph.Warn,
		Step:      passThrough,
	})
	return s
}

func (s *Store[T]) outNode() graph.NodeID { return s.updates }

func (s *Store[T]) inNode() graph.NodeID {
	if s.state.Derived() {
		configPanic("target", s, "derived stores cannot be written")
	}
	s.setOnce.Do(func() {
		s.setter = s.graph.Add(&graph.Node{
			Name:      s.typ + ".set",
			Kind:      "reducer",
			Priority:  graph.Child,
			FailCheck: graph.Warn,
			Step: func(rt graph.Runtime, payload any) (any, bool) {
				v := as[T](payload)
				if !rt.Write(s.state, v) {
					return nil, false
				}
				return v, true
			},
		})
		s.graph.Link(s.setter, s.updates)
	})
	return s.setter
}

func (*Store[T]) emits(T) {}
func (*Store[T]) accepts(T) {}

// SID returns the serialization id, or "".
func (s *Store[T]) SID() string {
	return s.state.SID
}

// Derived reports whether the store is computed from other stores.
func (s *Store[T]) Derived() bool {
	return s.state.Derived()
}

// DefaultState returns the value new scopes start from.
func (s *Store[T]) DefaultState() T {
	return as[T](s.state.Default)
}

// GetState returns the value in the default scope of the store's graph.
func (s *Store[T]) GetState() T {
	return s.StateIn(defaultScope(s.graph))
}

// StateIn returns the value in scope.
func (s *Store[T]) StateIn(scope *Scope) T {
	return as[T](scope.core.Get(s.state))
}

// Read returns the value in the scope carried by ctx. Unlike GetState it
// never falls back to the default scope.
func (s *Store[T]) Read(ctx context.Context) (T, error) {
	scope, err := RequireScope(ctx)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("read %s: %w", s.typ, err)
	}
	return s.StateIn(scope), nil
}

// Updates returns an event fired with every new value of the store.
func (s *Store[T]) Updates() *Event[T] {
	s.updatesOnce.Do(func() {
		s.updatesEvent = derivedEvent[T](derivedMeta(KindEvent, s.typ+".updates", &s.unitMeta), s.updates)
	})
	return s.updatesEvent
}

// Watch calls fn with the current default-scope value, then with every
// update in any scope.
func (s *Store[T]) Watch(fn func(T)) *Subscription {
	fn(s.GetState())
	return watch(&s.unitMeta, s.updates, func(_ graph.Runtime, v T) { fn(v) }, nil)
}

// WatchContext is Watch with the tick context. The immediate call gets a
// context carrying the default scope.
func (s *Store[T]) WatchContext(fn func(context.Context, T)) *Subscription {
	def := defaultScope(s.graph)
	fn(WithScope(context.Background(), def), s.StateIn(def))
	return watch(&s.unitMeta, s.updates, func(rt graph.Runtime, v T) { fn(rt.Context(), v) }, nil)
}

// Subscribe is Watch with a completion callback.
func (s *Store[T]) Subscribe(sub Subscriber[T]) *Subscription {
	next := func(v T) {
		if sub.Next != nil {
			sub.Next(v)
		}
	}
	next(s.GetState())
	return watch(&s.unitMeta, s.updates, func(_ graph.Runtime, v T) { next(v) }, sub.Complete)
}

// On binds a reducer: every firing of src replaces the store's value with
// fn(current, payload). Returning a value equal to the current one stops
// propagation.
//
// A second reducer for the same src panics with a *ConfigError unless
// AllowOverride is given.
func On[S, P any](s *Store[S], src Source[P], fn func(S, P) S, opts ...Option) *Store[S] {
	o := buildOptions(opts)
	sameGraph("on", s, src)
	if s.state.Derived() {
		configPanic("on", s, "reducers cannot be bound to derived stores")
	}
	s.bind("on", src, o.allowOverride, func(cur S, payload any) S {
		return fn(cur, as[P](payload))
	})
	return s
}

// Reset binds reducers that restore the default value on every firing of
// units. An existing reducer for the same unit is replaced.
func (s *Store[T]) Reset(units ...Unit) *Store[T] {
	if s.state.Derived() {
		configPanic("reset", s, "derived stores cannot be reset")
	}
	def := s.DefaultState()
	for _, u := range units {
		src, ok := u.(emitter)
		if !ok {
			configPanic("reset", s, "%s cannot trigger a reset", u.GetType())
		}
		sameGraph("reset", s, u)
		s.bind("reset", src, true, func(T, any) T { return def })
	}
	return s
}

// Off removes the reducers bound to units.
func (s *Store[T]) Off(units ...Unit) *Store[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range units {
		src, ok := u.(emitter)
		if !ok {
			continue
		}
		from := src.outNode()
		if id, bound := s.bindings[from]; bound {
			s.graph.Unlink(from, id)
			delete(s.bindings, from)
		}
	}
	return s
}

// Has reports whether a reducer is bound to u.
func (s *Store[T]) Has(u Unit) bool {
	src, ok := u.(emitter)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, bound := s.bindings[src.outNode()]
	return bound
}

func (s *Store[T]) bind(op string, src emitter, override bool, reduce func(cur T, payload any) T) {
	from := src.outNode()

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, bound := s.bindings[from]; bound {
		if !override {
			configPanic(op, s, "already has a reducer for %s", src.GetType())
		}
		s.graph.Unlink(from, old)
	}

	id := s.graph.Add(&graph.Node{
		Name:      s.typ + "." + op,
		Kind:      "reducer",
		Priority:  graph.Child,
		FailCheck: graph.Warn,
		Step: func(rt graph.Runtime, payload any) (any, bool) {
			next := reduce(as[T](rt.Read(s.state)), payload)
			if !rt.Write(s.state, next) {
				return nil, false
			}
			return next, true
		},
	})
	s.graph.Link(from, id)
	s.graph.Link(id, s.updates)
	s.bindings[from] = id
}

// dispatch implements dispatcher: firing a store sets its value.
func (s *Store[T]) dispatch(payload any) (graph.NodeID, any, func() Settled, error) {
	if s.state.Derived() {
		return 0, nil, nil, &ConfigError{Op: "dispatch", Unit: s.typ, Message: "derived stores cannot be written"}
	}
	v, err := checkParams[T](s, payload)
	if err != nil {
		return 0, nil, nil, err
	}
	return s.inNode(), v, func() Settled { return Settled{Status: StatusDone, Value: v} }, nil
}

// stateOf implements valueSlot.
func (s *Store[T]) stateOf() *graph.State {
	return s.state
}

// convert implements valueSlot.
func (s *Store[T]) convert(v any) (any, error) {
	return checkParams[T](s, v)
}

// coerce converts a restored snapshot value to T. Values decoded from
// JSON (float64, map[string]any) are converted through a JSON round trip.
func coerce[T any](v any) (any, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	if v == nil {
		var zero T
		return zero, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("coerce %T: %w", v, err)
	}
	var t T
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("coerce %T: %w", v, err)
	}
	return t, nil
}
