package harness

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/rill/internal/engine"
	"github.com/roach88/rill/internal/graph"
	"github.com/roach88/rill/internal/testutil"
)

// Trace event types.
const (
	EventDispatch     = "dispatch"      // a scenario step fired a unit
	EventSettled      = "settled"       // the step's call settled
	EventTick         = "tick"          // a tick started
	EventStep         = "step"          // a node ran
	EventStepError    = "step_error"    // a node panicked
	EventEffectStart  = "effect_start"  // an effect body was launched
	EventEffectSettle = "effect_settle" // an effect body returned
)

// TraceEvent is one recorded observation.
type TraceEvent struct {
	N      int64  `json:"n"`
	Type   string `json:"type"`
	Tick   int64  `json:"tick,omitempty"`
	Node   string `json:"node,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StepResult is the observed outcome of one scenario step.
type StepResult struct {
	Dispatch   string `json:"dispatch"`
	Status     string `json:"status"`
	Value      any    `json:"value,omitempty"`
	Error      string `json:"error,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	ScopeID string `json:"scope_id"`

	Steps []StepResult `json:"steps"`

	// Trace holds every recorded event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expect and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds every store's final value by name.
	State map[string]any `json:"state,omitempty"`

	// Snapshot is the snapshot archived after the last step, keyed by sid.
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scopeID string) *Result {
	return &Result{
		Pass:    true,
		ScopeID: scopeID,
		Steps:   []StepResult{},
		Trace:   []TraceEvent{},
		Errors:  []string{},
		State:   make(map[string]any),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Recorder is a kernel hook that builds the trace of a run.
//
// Effect settlements happen on effect goroutines, in no fixed order
// relative to the rest of the launching tick. The recorder holds each one
// back until the tick that delivers its outcome starts, so the trace of a
// sequential run is deterministic.
type Recorder struct {
	engine.BaseHooks

	prefix  string
	counter *testutil.Counter

	mu      sync.Mutex
	events  []TraceEvent
	pending map[string][]TraceEvent
}

var _ engine.Hooks = (*Recorder)(nil)

// NewRecorder creates a recorder. Node names starting with program + "/"
// are recorded without that prefix.
func NewRecorder(program string, counter *testutil.Counter) *Recorder {
	if counter == nil {
		counter = testutil.NewCounter()
	}
	return &Recorder{
		prefix:  program + "/",
		counter: counter,
		pending: make(map[string][]TraceEvent),
	}
}

func (r *Recorder) local(name string) string {
	return strings.TrimPrefix(name, r.prefix)
}

// record appends ev, numbering it. Callers hold r.mu.
func (r *Recorder) record(ev TraceEvent) {
	ev.N = r.counter.Next()
	r.events = append(r.events, ev)
}

// Mark records a scenario-level event.
func (r *Recorder) Mark(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(ev)
}

// OnTickStart implements engine.Hooks.
func (r *Recorder) OnTickStart(info engine.TickInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	root := ""
	if info.Root != nil {
		root = info.Root.Name
	}
	if held := r.pending[root]; len(held) > 0 {
		r.record(held[0])
		r.pending[root] = held[1:]
	}
	r.record(TraceEvent{Type: EventTick, Tick: info.Seq, Node: r.local(root)})
}

// OnStep implements engine.Hooks.
func (r *Recorder) OnStep(info engine.TickInfo, node *graph.Node, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(TraceEvent{Type: EventStep, Tick: info.Seq, Node: r.local(node.Name), Kind: node.Kind})
}

// OnStepError implements engine.Hooks.
func (r *Recorder) OnStepError(info engine.TickInfo, node *graph.Node, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(TraceEvent{Type: EventStepError, Tick: info.Seq, Node: r.local(node.Name), Error: err.Error()})
}

// OnEffectStart implements engine.Hooks.
func (r *Recorder) OnEffectStart(info engine.TickInfo, effect string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(TraceEvent{Type: EventEffectStart, Tick: info.Seq, Node: r.local(effect)})
}

// OnEffectSettle implements engine.Hooks. The event is held until the
// settle tick of effect starts.
func (r *Recorder) OnEffectSettle(_ string, effect string, err error, _ time.Duration) {
	ev := TraceEvent{Type: EventEffectSettle, Node: r.local(effect), Status: "done"}
	if err != nil {
		ev.Status = "fail"
		ev.Error = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := effect + ".finally"
	r.pending[key] = append(r.pending[key], ev)
}

// Events returns the recorded trace. Settlements whose tick never started
// are flushed to the end first.
func (r *Recorder) Events() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range slices.Sorted(maps.Keys(r.pending)) {
		for _, ev := range r.pending[key] {
			r.record(ev)
		}
		delete(r.pending, key)
	}
	return slices.Clone(r.events)
}
