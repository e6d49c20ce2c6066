// Package testutil holds deterministic helpers for scenario runs and
// tests: a resettable event counter, fixed scope ids and a silent logger.
package testutil

import (
	"io"
	"log/slog"
	"sync"
)

// Counter numbers trace events in the order they are recorded.
//
// Unlike engine.Clock, which numbers the ticks of one scope, a Counter is
// shared by everything a scenario records and can be reset between runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Counter struct {
	mu sync.Mutex
	n  int64
}

// NewCounter creates a counter starting at 0. The first call to Next
// returns 1.
func NewCounter() *Counter {
	return &Counter{}
}

// Next increments and returns the counter.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Current returns the counter without incrementing.
func (c *Counter) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset sets the counter back to 0.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
