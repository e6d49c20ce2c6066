package engine

import "github.com/roach88/rill/internal/graph"

// queue is an unbounded FIFO.
//
// The queue is unbounded so that cascading propagation can enqueue
// arbitrarily many steps without blocking. It is not safe for concurrent
// use: the root list is guarded by Scope.mu and the bands are owned by one
// tick.
type queue[T any] struct {
	items []T
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{items: make([]T, 0, 16)}
}

// Enqueue adds v to the back of the queue.
func (q *queue[T]) Enqueue(v T) {
	q.items = append(q.items, v)
}

// TryDequeue removes and returns the front item.
// Returns false if the queue is empty.
func (q *queue[T]) TryDequeue() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]

	// Zero the slot so the backing array does not retain payloads.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

// Len returns the number of queued items.
func (q *queue[T]) Len() int {
	return len(q.items)
}

// Clear drops every queued item.
func (q *queue[T]) Clear() {
	clear(q.items)
	q.items = q.items[:0]
}

// step is one pending node execution within a tick.
type step struct {
	node    *graph.Node
	payload any
}

// bands holds one FIFO per priority class.
type bands struct {
	q       [graph.NumPriorities]queue[step]
	waiting map[graph.NodeID]bool
}

func newBands() *bands {
	return &bands{waiting: make(map[graph.NodeID]bool)}
}

// push enqueues n in its priority band. A barrier node that is already
// waiting is skipped; it will read current state when it runs.
// Returns false if the push was deduplicated.
func (b *bands) push(n *graph.Node, payload any) bool {
	if n.Priority == graph.Barrier {
		if b.waiting[n.ID] {
			return false
		}
		b.waiting[n.ID] = true
	}
	b.q[n.Priority].Enqueue(step{node: n, payload: payload})
	return true
}

// pop returns the head of the lowest non-empty band.
func (b *bands) pop() (step, bool) {
	for i := range b.q {
		if s, ok := b.q[i].TryDequeue(); ok {
			if s.node.Priority == graph.Barrier {
				delete(b.waiting, s.node.ID)
			}
			return s, true
		}
	}
	return step{}, false
}

// Len returns the number of pending steps across all bands.
func (b *bands) Len() int {
	n := 0
	for i := range b.q {
		n += b.q[i].Len()
	}
	return n
}

// clear drops every pending step.
func (b *bands) clear() {
	for i := range b.q {
		b.q[i].Clear()
	}
	clear(b.waiting)
}
