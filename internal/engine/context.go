package engine

import (
	"context"
	"slices"
	"sync/atomic"
)

type scopeKey struct{}

type barriersKey struct{}

type tickKey struct{}

// tickMark identifies one running tick. It is cleared when the tick ends,
// so a context kept past its tick no longer counts as re-entrant.
type tickMark struct {
	scope  *Scope
	active atomic.Bool
}

// WithScope returns a context carrying s.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope carried by ctx.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// WithBarrier returns a context whose dispatches also count toward b.
func WithBarrier(ctx context.Context, b *Barrier) context.Context {
	prev := barriersFrom(ctx)
	next := make([]*Barrier, 0, len(prev)+1)
	next = append(next, prev...)
	return context.WithValue(ctx, barriersKey{}, append(next, b))
}

func barriersFrom(ctx context.Context) []*Barrier {
	bs, _ := ctx.Value(barriersKey{}).([]*Barrier)
	return slices.Clip(bs)
}

// InTick reports whether ctx was handed out by a tick of s that is still
// running. Code holding such a context runs on the drainer of s, so it
// must not block on work queued behind that tick.
func (s *Scope) InTick(ctx context.Context) bool {
	m, _ := ctx.Value(tickKey{}).(*tickMark)
	return m != nil && m.scope == s && m.active.Load()
}

// withoutTick drops the tick mark, so root items and effect bodies
// started from a watcher do not inherit it.
func withoutTick(ctx context.Context) context.Context {
	if m, _ := ctx.Value(tickKey{}).(*tickMark); m == nil {
		return ctx
	}
	return context.WithValue(ctx, tickKey{}, (*tickMark)(nil))
}
