package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// Barrier counts the root items and running effect bodies that are
// causally reachable from one call, and signals when the count returns to
// zero.
//
// The count starts at zero. It is incremented when a root item carrying the
// barrier is queued or an effect body starts, and decremented when that
// item's tick finishes or that body has handed its settlement to a new
// root item. A handoff always increments before it decrements, so Done
// closes exactly once, when the whole cascade has settled.
type Barrier struct {
	pending atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// NewBarrier creates an open barrier.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

func (b *Barrier) add() {
	b.pending.Add(1)
}

func (b *Barrier) release() {
	if b.pending.Add(-1) == 0 {
		b.once.Do(func() { close(b.done) })
	}
}

// Done returns a channel closed when the cascade has settled.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}

// Pending returns the number of outstanding items.
func (b *Barrier) Pending() int64 {
	return b.pending.Load()
}

// Wait blocks until the cascade settles or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func addAll(bs []*Barrier) {
	for _, b := range bs {
		b.add()
	}
}

func releaseAll(bs []*Barrier) {
	for _, b := range bs {
		b.release()
	}
}
