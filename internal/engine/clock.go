package engine

import "sync/atomic"

// Clock numbers the ticks of one scope. Seq 1 is the first tick; a
// resumed scope starts after the last seq its journal holds, so journal
// rows keyed by (scope, seq) never collide.
//
// Only the draining goroutine advances a clock. Readers on other
// goroutines (hooks, tests) see the last issued seq.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first tick is seq 1.
func NewClock() *Clock {
	return NewClockAfter(0)
}

// NewClockAfter returns a clock whose first tick is last+1. Negative
// values are treated as zero.
func NewClockAfter(last int64) *Clock {
	c := &Clock{}
	c.last.Store(max(last, 0))
	return c
}

// Next issues the seq of a new tick.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the seq of the latest tick, or the starting point when
// no tick has run.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
