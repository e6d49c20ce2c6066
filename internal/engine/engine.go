package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/rill/internal/graph"
)

// root is one pending external or re-entrant dispatch.
type root struct {
	node    graph.NodeID
	payload any

	// ctx carries the scope and barriers. It is detached from the caller's
	// cancellation: a dispatched item always runs.
	ctx    context.Context
	causes []*Barrier
	after  func()

	// done is closed after the item's tick has finished. Only callers
	// that wait on another goroutine's drain set it.
	done      chan struct{}
	handedOff bool
	err       error
}

// Dispatch runs node id with payload against the scope.
//
// If no other goroutine is draining the scope, the caller becomes the
// drainer: the tick for this item runs before Dispatch returns, along with
// any items queued meanwhile. The returned error holds the diagnostics of
// this item's tick (throw-mode failures, quota, missing node).
//
// If another goroutine is draining (a concurrent caller, or an effect
// settling) the item is queued behind the active drainer and Dispatch
// blocks until its tick has finished.
//
// A dispatch made from inside a tick of this scope (a watcher using the
// context it was given) cannot wait on its own drainer. The item is queued
// to run after the current tick and Dispatch returns nil immediately; use
// a Barrier to observe its completion.
func (s *Scope) Dispatch(ctx context.Context, id graph.NodeID, payload any) error {
	return s.submit(ctx, s.newRoot(ctx, id, payload, barriersFrom(ctx), nil))
}

// DispatchThen is Dispatch with a callback that runs after the item's
// tick has finished, on the draining goroutine.
func (s *Scope) DispatchThen(ctx context.Context, id graph.NodeID, payload any, after func()) error {
	return s.submit(ctx, s.newRoot(ctx, id, payload, barriersFrom(ctx), after))
}

func (s *Scope) newRoot(ctx context.Context, id graph.NodeID, payload any, causes []*Barrier, after func()) *root {
	base := withoutTick(WithScope(context.WithoutCancel(ctx), s))
	addAll(causes)
	s.enter()
	return &root{
		node:    id,
		payload: payload,
		ctx:     base,
		causes:  causes,
		after:   after,
	}
}

func (s *Scope) submit(ctx context.Context, r *root) error {
	reentrant := s.InTick(ctx)

	s.mu.Lock()
	if s.running && reentrant {
		r.handedOff = true
		s.roots.Enqueue(r)
		s.mu.Unlock()
		return nil
	}
	if s.running {
		r.done = make(chan struct{})
		s.roots.Enqueue(r)
		s.mu.Unlock()
		<-r.done
		return r.err
	}
	s.roots.Enqueue(r)
	s.running = true
	s.mu.Unlock()

	s.drain()
	return r.err
}

// drain processes root items until the work list is empty.
// CRITICAL: only one goroutine drains a scope at a time.
func (s *Scope) drain() {
	for {
		s.mu.Lock()
		r, ok := s.roots.TryDequeue()
		if !ok {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.runTick(r)

		if r.done != nil {
			close(r.done)
			continue
		}
		if r.handedOff && r.err != nil {
			// The caller already returned; log with full context instead.
			s.Logger().Error("tick failed",
				"scope", s.id,
				"node", r.node,
				"error", r.err,
			)
		}
	}
}

// tick is the execution state of one root item. It implements
// graph.Runtime for the steps it runs.
type tick struct {
	scope *Scope
	root  *root
	ctx   context.Context
	info  TickInfo
	bands *bands
	quota *QuotaEnforcer
	stats TickStats
	errs  []error
}

func (s *Scope) runTick(r *root) {
	seq := s.clock.Next()
	defer s.finish(r)

	n, ok := s.graph.Node(r.node)
	if !ok {
		r.err = NewMissingNodeError(s.id, uint64(r.node))
		s.Logger().Error("root node not found", "scope", s.id, "seq", seq, "node", r.node)
		return
	}

	mark := &tickMark{scope: s}
	mark.active.Store(true)
	defer mark.active.Store(false)

	t := &tick{
		scope: s,
		root:  r,
		ctx:   context.WithValue(r.ctx, tickKey{}, mark),
		info:  TickInfo{Scope: s.id, Seq: seq, Root: n},
		bands: newBands(),
		quota: NewQuotaEnforcer(s.maxSteps),
	}

	s.hooks.OnTickStart(t.info)
	s.Logger().Debug("tick started", "scope", s.id, "seq", seq, "root", n.Name)

	if n.Unused != graph.Off && len(s.graph.Edges(n.ID)) == 0 {
		t.report(n, n.Unused, NewUnusedError(s.id, n.Name, seq))
	}

	// The root step runs first regardless of its band.
	t.exec(step{node: n, payload: r.payload})

	for {
		next, ok := t.bands.pop()
		if !ok {
			break
		}
		if err := t.quota.Check(s.id, seq); err != nil {
			var se *StepsExceededError
			errors.As(err, &se)
			qe := NewQuotaError(s.id, seq, se)
			t.errs = append(t.errs, qe)
			t.stats.Aborted = true
			s.Logger().Error("max steps quota exceeded",
				"scope", s.id,
				"seq", seq,
				"root", n.Name,
				"steps", se.Steps,
				"limit", se.Limit,
			)
			t.bands.clear()
			break
		}
		t.exec(next)
	}

	s.hooks.OnTickEnd(t.info, t.stats)
	s.Logger().Debug("tick finished",
		"scope", s.id,
		"seq", seq,
		"steps", t.stats.Steps,
		"effects", t.stats.Effects,
		"failed", t.stats.Failed,
	)
	r.err = errors.Join(t.errs...)
}

func (s *Scope) finish(r *root) {
	if r.after != nil {
		r.after()
	}
	releaseAll(r.causes)
	s.leave()
}

// exec runs one step and fans its output out along the active edges.
func (t *tick) exec(st step) {
	t.stats.Steps++
	t.scope.hooks.OnStep(t.info, st.node, st.payload)

	out, ok, err := t.call(st)
	if err != nil {
		t.stats.Failed++
		t.scope.hooks.OnStepError(t.info, st.node, err)
		t.report(st.node, st.node.FailCheck, err)
		return
	}
	if !ok {
		return
	}

	for _, id := range t.scope.graph.Edges(st.node.ID) {
		n, found := t.scope.graph.Node(id)
		if !found {
			continue
		}
		t.bands.push(n, out)
	}
}

// call runs the step function, converting a panic into a step error.
func (t *tick) call(st step) (out any, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
			err = NewStepError(t.scope.id, st.node.Name, t.info.Seq, r)
		}
	}()
	out, ok = st.node.Step(t, st.payload)
	return out, ok, nil
}

// report applies a unit's warn mode to a diagnostic.
func (t *tick) report(n *graph.Node, mode graph.WarnMode, err error) {
	switch mode {
	case graph.Off:
	case graph.Warn:
		t.scope.Logger().Warn("step diagnostic",
			"scope", t.scope.id,
			"seq", t.info.Seq,
			"node", n.Name,
			"kind", n.Kind,
			"error", err,
		)
	case graph.Throw:
		t.errs = append(t.errs, err)
	}
}

// Context implements graph.Runtime. The context marks the tick as
// active; see Scope.InTick.
func (t *tick) Context() context.Context {
	return t.ctx
}

// Read implements graph.Runtime.
func (t *tick) Read(st *graph.State) any {
	return t.scope.read(st)
}

// Write implements graph.Runtime.
func (t *tick) Write(st *graph.State, v any) bool {
	return t.scope.write(st, v)
}

// Override implements graph.Runtime.
func (t *tick) Override(key any) (any, bool) {
	return t.scope.Override(key)
}

// Launch implements graph.Runtime.
//
// The body runs on its own goroutine with the root item's context. Its
// result is dispatched to settle as a new root item carrying the same
// barriers. The body's own count is released only after the settle item
// has been counted, so barriers cannot observe zero in between.
func (t *tick) Launch(name string, settle graph.NodeID, body func(ctx context.Context) (any, error), after func()) {
	s := t.scope
	causes := t.root.causes
	ctx := t.root.ctx

	addAll(causes)
	s.enter()
	t.stats.Effects++
	s.hooks.OnEffectStart(t.info, name)

	go func() {
		start := time.Now()
		payload, err := runBody(ctx, body)
		s.hooks.OnEffectSettle(s.id, name, err, time.Since(start))

		r := s.newRoot(ctx, settle, payload, causes, after)
		releaseAll(causes)
		s.leave()

		if err := s.submit(ctx, r); err != nil {
			s.Logger().Error("settle tick failed",
				"scope", s.id,
				"effect", name,
				"error", err,
			)
		}
	}()
}

// runBody shields the kernel from a body that panics outside the handler
// recovery of the unit layer.
func runBody(ctx context.Context, body func(ctx context.Context) (any, error)) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, fmt.Errorf("effect body panicked: %v", r)
		}
	}()
	return body(ctx)
}
