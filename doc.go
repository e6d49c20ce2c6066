// Package rill is an in-process reactive dataflow kernel.
//
// # Overview
//
// Programs are built from four kinds of units:
//
//  1. Events: stateless pass-through signals
//  2. Stores: per-scope values updated by reducers bound with On
//  3. Effects: asynchronous handlers that settle as done or fail
//  4. Domains: namespaces that tag units and carry default configuration
//
// Operators (Map, Filter, Sample, Combine2..4, Attach, Trigger) wire new
// units from existing ones. They run once, at build time.
//
// # Scopes
//
// A Scope holds the values of every store for one logical world, such as
// one server request. The graph is shared by all scopes; forking never
// copies nodes, only state:
//
//	count := rill.NewStore(0, rill.WithSID("count"))
//	inc := rill.NewEvent[struct{}]("inc")
//	rill.On(count, inc, func(n int, _ struct{}) int { return n + 1 })
//
//	scope := rill.MustFork(rill.WithValue(count, 10))
//	_, err := rill.AllSettled(ctx, inc, rill.InScope(scope))
//	n := count.StateIn(scope) // 11
//
// # Ticks
//
// Dispatching a unit runs one tick: every reachable step runs to
// completion in priority order (child, pure, barrier, sampler, effect)
// before the dispatch returns. A watcher that dispatches again queues a new
// tick instead of recursing. Effect bodies are the only suspension point:
// they run on their own goroutine and settle through a new tick in the
// scope that started them.
//
// # Settlement
//
// AllSettled dispatches a unit and waits until every tick and effect body
// caused by that call has finished, including effects started by other
// effects' outcomes. Unrelated work on the same scope does not hold it.
//
// # Serialization
//
// Serialize returns the values of every store that has a sid. Forking with
// WithSnapshot restores them:
//
//	snap := rill.Serialize(scope, rill.OnlyChanges())
//	restored := rill.MustFork(rill.WithSnapshot(snap))
package rill
