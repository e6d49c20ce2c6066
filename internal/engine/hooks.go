package engine

import (
	"time"

	"github.com/roach88/rill/internal/graph"
)

// TickInfo identifies one tick.
type TickInfo struct {
	Scope string
	Seq   int64
	Root  *graph.Node
}

// TickStats summarizes a finished tick.
type TickStats struct {
	Steps   int
	Effects int
	Failed  int
	Aborted bool
}

// Hooks observe kernel execution. Implementations must be safe for
// concurrent use: OnEffectSettle runs on effect goroutines while ticks of
// other scopes may be running.
type Hooks interface {
	OnTickStart(info TickInfo)
	OnStep(info TickInfo, node *graph.Node, payload any)
	OnStepError(info TickInfo, node *graph.Node, err error)
	OnEffectStart(info TickInfo, effect string)
	OnEffectSettle(scope, effect string, err error, elapsed time.Duration)
	OnTickEnd(info TickInfo, stats TickStats)
}

// BaseHooks provides no-op implementations for embedding.
type BaseHooks struct{}

func (BaseHooks) OnTickStart(TickInfo) {}
func (BaseHooks) OnStep(TickInfo, *graph.Node, any) {}
func (BaseHooks) OnStepError(TickInfo, *graph.Node, error) {}
func (BaseHooks) OnEffectStart(TickInfo, string) {}
func (BaseHooks) OnEffectSettle(string, string, error, time.Duration) {}
func (BaseHooks) OnTickEnd(TickInfo, TickStats) {}

// multiHooks fans out to several hooks in registration order.
type multiHooks []Hooks

func (m multiHooks) OnTickStart(info TickInfo) {
	for _, h := range m {
		h.OnTickStart(info)
	}
}

func (m multiHooks) OnStep(info TickInfo, node *graph.Node, payload any) {
	for _, h := range m {
		h.OnStep(info, node, payload)
	}
}

func (m multiHooks) OnStepError(info TickInfo, node *graph.Node, err error) {
	for _, h := range m {
		h.OnStepError(info, node, err)
	}
}

func (m multiHooks) OnEffectStart(info TickInfo, effect string) {
	for _, h := range m {
		h.OnEffectStart(info, effect)
	}
}

func (m multiHooks) OnEffectSettle(scope, effect string, err error, elapsed time.Duration) {
	for _, h := range m {
		h.OnEffectSettle(scope, effect, err, elapsed)
	}
}

func (m multiHooks) OnTickEnd(info TickInfo, stats TickStats) {
	for _, h := range m {
		h.OnTickEnd(info, stats)
	}
}
