package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/rill/internal/graph"
)

// DefaultMaxSteps is the default maximum number of steps per tick.
const DefaultMaxSteps = 10000

// Option configures a Scope.
type Option func(*Scope)

// WithMaxSteps sets the step quota per tick. Zero or less disables it.
func WithMaxSteps(maxSteps int) Option {
	return func(s *Scope) {
		s.maxSteps = maxSteps
	}
}

// WithLogger sets the scope's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scope) {
		s.log = l
	}
}

// WithHooks adds execution hooks. Hooks run in registration order.
func WithHooks(h ...Hooks) Option {
	return func(s *Scope) {
		s.hooks = append(s.hooks, h...)
	}
}

// WithIDGenerator sets the scope id generator. Defaults to UUIDv7.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Scope) {
		s.idGen = gen
	}
}

// WithID sets the scope id, bypassing the generator. Used to resume a
// scope whose journal already exists.
func WithID(id string) Option {
	return func(s *Scope) {
		s.id = id
	}
}

// WithClock sets the tick clock.
func WithClock(c *Clock) Option {
	return func(s *Scope) {
		s.clock = c
	}
}

// Scope is an isolated state table plus the root work list that drives
// ticks against it.
//
// Thread-safety model:
//   - Dispatch, Get, Seed: safe from any goroutine
//   - steps only run on the goroutine currently draining the scope
//
// INVARIANTS:
//   - values never holds a state of another scope
//   - the graph is only read, never modified, by the kernel
type Scope struct {
	id       string
	graph    *graph.Graph
	log      *slog.Logger
	hooks    multiHooks
	idGen    IDGenerator
	clock    *Clock
	maxSteps int

	stateMu   sync.Mutex
	values    map[*graph.State]any
	written   map[*graph.State]bool
	sidSeeds  map[string]any
	overrides map[any]any

	mu       sync.Mutex
	roots    *queue[*root]
	running  bool
	inflight int
	idle     chan struct{}
}

// NewScope creates a scope over g.
func NewScope(g *graph.Graph, opts ...Option) *Scope {
	s := &Scope{
		graph:     g,
		maxSteps:  DefaultMaxSteps,
		values:    make(map[*graph.State]any),
		written:   make(map[*graph.State]bool),
		sidSeeds:  make(map[string]any),
		overrides: make(map[any]any),
		roots:     newQueue[*root](),
		idle:      make(chan struct{}),
	}
	close(s.idle)

	for _, opt := range opts {
		opt(s)
	}

	if s.idGen == nil {
		s.idGen = UUIDv7Generator{}
	}
	if s.clock == nil {
		s.clock = NewClock()
	}
	if s.id == "" {
		s.id = s.idGen.Generate()
	}
	return s
}

// ID returns the scope id.
func (s *Scope) ID() string {
	return s.id
}

// Graph returns the graph the scope executes.
func (s *Scope) Graph() *graph.Graph {
	return s.graph
}

// Clock returns the tick clock.
func (s *Scope) Clock() *Clock {
	return s.clock
}

// Logger returns the scope's logger.
func (s *Scope) Logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return slog.Default()
}

// Get returns the current value of st, seeding it if needed.
func (s *Scope) Get(st *graph.State) any {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.readLocked(st)
}

// Seed sets st to v before any dispatch and marks it written. Cached
// values of states derived from st are dropped so they recompute from v.
func (s *Scope) Seed(st *graph.State, v any) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.values[st] = v
	s.written[st] = true
	s.dropDerivedLocked(st)
}

// SeedSID records a snapshot value for sid. States with that sid pick it
// up when first read. Sids no state knows are kept for SIDSeeds.
func (s *Scope) SeedSID(sid string, v any) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.sidSeeds[sid] = v
	if st, ok := s.graph.LookupSID(sid); ok {
		delete(s.values, st)
		s.dropDerivedLocked(st)
	}
}

// SIDSeeds returns a copy of the snapshot values the scope was seeded
// with.
func (s *Scope) SIDSeeds() map[string]any {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	out := make(map[string]any, len(s.sidSeeds))
	for k, v := range s.sidSeeds {
		out[k] = v
	}
	return out
}

// Written reports whether st was explicitly set in this scope, by a seed
// or by a tick.
func (s *Scope) Written(st *graph.State) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.written[st] {
		return true
	}
	_, seeded := s.sidSeeds[st.SID]
	return seeded && s.ownsSID(st)
}

// WrittenStates returns every explicitly written state.
func (s *Scope) WrittenStates() []*graph.State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	out := make([]*graph.State, 0, len(s.written))
	for st := range s.written {
		out = append(out, st)
	}
	return out
}

// SetOverride registers a per-scope replacement under key.
func (s *Scope) SetOverride(key, v any) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.overrides[key] = v
}

// Override returns the replacement registered under key.
func (s *Scope) Override(key any) (any, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	v, ok := s.overrides[key]
	return v, ok
}

// Inflight returns the number of queued root items and running effect
// bodies.
func (s *Scope) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// Wait blocks until the scope has no queued root item and no running
// effect body, or ctx is done.
func (s *Scope) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scope) enter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	if s.inflight == 1 {
		s.idle = make(chan struct{})
	}
}

func (s *Scope) leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

// read returns the value of st.
func (s *Scope) read(st *graph.State) any {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.readLocked(st)
}

// write stores v for st and reports whether it changed. Direct dependents
// are materialized first so their comparison baseline is the value
// derived from the old st.
func (s *Scope) write(st *graph.State, v any) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	cur := s.readLocked(st)
	if st.Same(cur, v) {
		return false
	}

	for _, d := range s.graph.Dependents(st) {
		s.readLocked(d)
	}

	s.values[st] = v
	if !st.Derived() {
		s.written[st] = true
	}
	return true
}

func (s *Scope) readLocked(st *graph.State) any {
	if v, ok := s.values[st]; ok {
		return v
	}
	v := s.seedLocked(st)
	s.values[st] = v
	return v
}

func (s *Scope) seedLocked(st *graph.State) any {
	if st.Derived() {
		return s.deriveLocked(st)
	}

	if s.ownsSID(st) {
		if raw, ok := s.sidSeeds[st.SID]; ok {
			if st.Coerce == nil {
				return raw
			}
			v, err := st.Coerce(raw)
			if err == nil {
				return v
			}
			s.Logger().Warn("snapshot value rejected, using default",
				"scope", s.id,
				"sid", st.SID,
				"error", err,
			)
		}
	}
	return st.Default
}

// ownsSID reports whether st is the state registered under its sid. After
// a collision only the last registration is restored.
func (s *Scope) ownsSID(st *graph.State) bool {
	if st.SID == "" {
		return false
	}
	owner, ok := s.graph.LookupSID(st.SID)
	return ok && owner == st
}

func (s *Scope) deriveLocked(st *graph.State) (v any) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger().Warn("derived state failed, using default",
				"scope", s.id,
				"state", st.Name,
				"panic", r,
			)
			v = st.Default
		}
	}()
	return st.Derive(s.readLocked)
}

func (s *Scope) dropDerivedLocked(st *graph.State) {
	for _, d := range s.graph.Dependents(st) {
		delete(s.values, d)
		s.dropDerivedLocked(d)
	}
}
