// Package engine implements the rill kernel.
//
// The kernel executes a shared graph.Graph against one Scope at a time.
// A Scope owns every mutable value (store values, handler overrides,
// effect bookkeeping); the graph is shared by reference and never copied.
//
// ARCHITECTURE:
//
// Single-Writer Drain:
// Each Scope has a root work list. Dispatch appends a root item; the
// goroutine that finds the scope idle becomes the drainer and processes
// root items one tick at a time until the list is empty. Any other
// goroutine (an effect settling, a concurrent caller) that dispatches while
// a drain is active queues its item and blocks until the drainer has run
// its tick, so Dispatch always returns after its own tick.
//
// A watcher that dispatches during a tick is different: it runs on the
// drainer, so waiting would never end. The tick context carries a mark
// (see Scope.InTick); dispatches made with it are queued behind the
// current tick and return at once. Re-entrant dispatch never recurses and
// stack depth stays constant.
//
// Tick Processing:
//  1. The root node runs first.
//  2. Outputs fan out along the active edges into five priority bands:
//     child, pure, barrier, sampler, effect.
//  3. The kernel always takes the head of the lowest non-empty band.
//  4. A barrier node already waiting in its band is not enqueued again.
//  5. The tick ends when every band is empty.
//
// Because effects run last, every pure and sampler derivation reachable
// in a tick has been applied before any watcher or effect body observes
// state.
//
// Effects:
// An effect body is the only suspension point. It runs in its own
// goroutine. When it returns, its settlement re-enters the scope as a new
// root item.
//
// Barriers:
// A Barrier counts root items and running effect bodies that are causally
// reachable from one call. Barriers travel in the context.Context of every
// root item and effect body spawned from that call.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every tick is stamped with the scope's monotonic Clock. Wall-clock time
// is only used for effect durations reported to hooks.
//
// Step Quota:
// A tick executes at most MaxSteps steps. Exceeding it aborts the rest of
// the tick with a QUOTA_EXCEEDED runtime error.
package engine
