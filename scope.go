package rill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/rill/internal/engine"
	"github.com/roach88/rill/internal/graph"
)

// Hooks observe ticks and effects of a scope.
type Hooks = engine.Hooks

// BaseHooks provides no-op Hooks methods for embedding.
type BaseHooks = engine.BaseHooks

// TickInfo identifies one tick.
type TickInfo = engine.TickInfo

// TickStats summarizes a finished tick.
type TickStats = engine.TickStats

// IDGenerator generates scope ids.
type IDGenerator = engine.IDGenerator

// SequenceIDs returns a generator of "<prefix>-1", "<prefix>-2", ...
func SequenceIDs(prefix string) IDGenerator {
	return engine.NewSequenceGenerator(prefix)
}

// Scope is an isolated world of store values over a shared graph.
//
// A scope has no close: effects still running when it is dropped settle
// into it and are then collected with it.
type Scope struct {
	core  *engine.Scope
	graph *graph.Graph
}

type ownerKey struct{}

func newScope(core *engine.Scope) *Scope {
	s := &Scope{core: core, graph: core.Graph()}
	core.SetOverride(ownerKey{}, s)
	return s
}

// ForkOption configures Fork.
type ForkOption func(*forkConfig)

type forkConfig struct {
	graph    *graph.Graph
	seeds    []seed
	snapshot Snapshot
	handlers []handlerSeed
	engine   []engine.Option
	err      error
}

type seed struct {
	slot  valueSlot
	value any
}

type handlerSeed struct {
	unit    Unit
	handler any
}

// valueSlot is the untyped view of a Store used by fork values.
type valueSlot interface {
	Unit
	stateOf() *graph.State
	convert(v any) (any, error)
}

// WithValue seeds s with v.
func WithValue[T any](s *Store[T], v T) ForkOption {
	return func(c *forkConfig) {
		if s == nil {
			c.err = &ConfigError{Op: "fork", Message: "nil store"}
			return
		}
		c.seeds = append(c.seeds, seed{slot: s, value: v})
	}
}

// WithValues seeds several stores at once. Keys must be stores; values
// must have the store's type.
func WithValues(values map[Unit]any) ForkOption {
	return func(c *forkConfig) {
		for u, v := range values {
			if u == nil {
				c.err = &ConfigError{Op: "fork", Message: "nil store"}
				return
			}
			slot, ok := u.(valueSlot)
			if !ok {
				c.err = &ConfigError{Op: "fork", Unit: u.GetType(), Message: "only stores can be seeded"}
				return
			}
			c.seeds = append(c.seeds, seed{slot: slot, value: v})
		}
	}
}

// WithSnapshot seeds stores by sid, as produced by Serialize. Explicit
// values given with WithValue take precedence.
func WithSnapshot(snap Snapshot) ForkOption {
	return func(c *forkConfig) {
		if c.snapshot == nil {
			c.snapshot = make(Snapshot, len(snap))
		}
		for sid, v := range snap {
			c.snapshot[sid] = v
		}
	}
}

// WithHandler replaces fx's handler in the forked scope only.
func WithHandler[P, R any](fx *Effect[P, R], h Handler[P, R]) ForkOption {
	return func(c *forkConfig) {
		c.handlers = append(c.handlers, handlerSeed{unit: fx, handler: h})
	}
}

// ForDomain forks over the graph of an isolated domain.
func ForDomain(d *Domain) ForkOption {
	return func(c *forkConfig) {
		c.graph = d.graph
	}
}

// WithHooks adds hooks to the forked scope.
func WithHooks(h ...Hooks) ForkOption {
	return func(c *forkConfig) {
		c.engine = append(c.engine, engine.WithHooks(h...))
	}
}

// WithLogger sets the scope's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ForkOption {
	return func(c *forkConfig) {
		c.engine = append(c.engine, engine.WithLogger(l))
	}
}

// WithMaxSteps sets the step quota per tick. Zero or less disables it.
func WithMaxSteps(n int) ForkOption {
	return func(c *forkConfig) {
		c.engine = append(c.engine, engine.WithMaxSteps(n))
	}
}

// WithScopeIDs sets the scope id generator. Defaults to UUIDv7.
func WithScopeIDs(gen IDGenerator) ForkOption {
	return func(c *forkConfig) {
		c.engine = append(c.engine, engine.WithIDGenerator(gen))
	}
}

// Resume makes the scope continue an earlier one: it takes id and numbers
// its ticks after lastSeq. Journal rows of both runs then read as one
// scope.
func Resume(id string, lastSeq int64) ForkOption {
	return func(c *forkConfig) {
		c.engine = append(c.engine,
			engine.WithID(id),
			engine.WithClock(engine.NewClockAfter(lastSeq)),
		)
	}
}

// Fork creates a scope. Snapshot values are applied first, then explicit
// values; handlers are registered last.
func Fork(opts ...ForkOption) (*Scope, error) {
	cfg := &forkConfig{graph: graph.Default}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}

	type resolved struct {
		state *graph.State
		value any
	}
	values := make([]resolved, 0, len(cfg.seeds))
	for _, sd := range cfg.seeds {
		st, v, err := sd.resolve(cfg.graph)
		if err != nil {
			return nil, err
		}
		values = append(values, resolved{state: st, value: v})
	}
	for _, h := range cfg.handlers {
		if h.unit.meta().graph != cfg.graph {
			return nil, fmt.Errorf("fork: handler for %s: %w", h.unit.GetType(), ErrForeignUnit)
		}
	}

	core := engine.NewScope(cfg.graph, cfg.engine...)
	for sid, v := range cfg.snapshot {
		core.SeedSID(sid, v)
	}
	for _, r := range values {
		core.Seed(r.state, r.value)
	}
	for _, h := range cfg.handlers {
		core.SetOverride(h.unit, h.handler)
	}
	return newScope(core), nil
}

func (sd seed) resolve(g *graph.Graph) (*graph.State, any, error) {
	if sd.slot.meta().graph != g {
		return nil, nil, fmt.Errorf("fork: %s: %w", sd.slot.GetType(), ErrForeignUnit)
	}
	st := sd.slot.stateOf()
	if st.Derived() {
		return nil, nil, &ConfigError{Op: "fork", Unit: sd.slot.GetType(), Message: "derived stores cannot be seeded"}
	}
	v, err := sd.slot.convert(sd.value)
	if err != nil {
		return nil, nil, &ConfigError{Op: "fork", Unit: sd.slot.GetType(), Message: err.Error(), Err: err}
	}
	return st, v, nil
}

// MustFork is Fork that panics on error.
func MustFork(opts ...ForkOption) *Scope {
	s, err := Fork(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

var defaultScopes sync.Map

// Default returns the scope used when no scope is given, for units of the
// default graph.
func Default() *Scope {
	return defaultScope(graph.Default)
}

func defaultScope(g *graph.Graph) *Scope {
	if s, ok := defaultScopes.Load(g); ok {
		return s.(*Scope)
	}
	s, _ := defaultScopes.LoadOrStore(g, newScope(engine.NewScope(g)))
	return s.(*Scope)
}

// ID returns the scope id.
func (s *Scope) ID() string {
	return s.core.ID()
}

// Logger returns the scope's logger.
func (s *Scope) Logger() *slog.Logger {
	return s.core.Logger()
}

// GetState returns the value of a store in the scope, or nil if u is not
// a store.
func (s *Scope) GetState(u Unit) any {
	slot, ok := u.(valueSlot)
	if !ok {
		return nil
	}
	return s.core.Get(slot.stateOf())
}

// Wait blocks until the scope has no queued tick and no running effect.
// Called with the context of one of the scope's own ticks it returns
// ErrWaitInTick.
func (s *Scope) Wait(ctx context.Context) error {
	if s.core.InTick(ctx) {
		return fmt.Errorf("wait %s: %w", s.ID(), ErrWaitInTick)
	}
	return s.core.Wait(ctx)
}

// TickSeq returns the seq of the scope's latest tick.
func (s *Scope) TickSeq() int64 {
	return s.core.Clock().Current()
}

// Inflight returns the number of queued ticks and running effects.
func (s *Scope) Inflight() int {
	return s.core.Inflight()
}

// Get returns the value of st in s.
func Get[T any](s *Scope, st *Store[T]) T {
	return st.StateIn(s)
}

// WithScope returns a context carrying s. Units sent with it run in s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return engine.WithScope(ctx, s.core)
}

// ScopeFrom returns the scope carried by ctx. Contexts passed to
// watchers and effect handlers always carry one.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	core, ok := engine.ScopeFrom(ctx)
	if !ok {
		return nil, false
	}
	v, ok := core.Override(ownerKey{})
	if !ok {
		return nil, false
	}
	s, ok := v.(*Scope)
	return s, ok
}

// RequireScope is ScopeFrom returning ErrNoScope.
func RequireScope(ctx context.Context) (*Scope, error) {
	s, ok := ScopeFrom(ctx)
	if !ok {
		return nil, ErrNoScope
	}
	return s, nil
}

// scopeFor picks the scope a call of u runs in: the one in ctx, or the
// default scope of u's graph.
func scopeFor(ctx context.Context, u Unit) (*Scope, error) {
	g := u.meta().graph
	s, ok := ScopeFrom(ctx)
	if !ok {
		return defaultScope(g), nil
	}
	if s.graph != g {
		return nil, fmt.Errorf("%s: %w", u.GetType(), ErrForeignUnit)
	}
	return s, nil
}
