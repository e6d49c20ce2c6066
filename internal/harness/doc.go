// Package harness runs rill programs against YAML scenarios.
//
// A scenario names a program directory, seeds the scope, dispatches units
// in order and asserts on the outcome of each call, the final state, the
// archived snapshot and the execution trace.
//
// # Scenario Format
//
//	name: counter_logs_each_increment
//	description: "Every inc is sampled into logFx and appended to log"
//	program: ../programs/counter
//	values: {count: 10}
//	steps:
//	  - dispatch: inc
//	    payload: 1
//	    expect: {status: done, value: 1}
//	  - dispatch: logFx
//	    payload: 3
//	assertions:
//	  - type: state
//	    expect: {count: 11, log: [11, 3]}
//	  - type: snapshot
//	    expect: {count: 11}
//	  - type: trace_count
//	    unit: logFx
//	    count: 2
//	  - type: trace_order
//	    units: [inc, count.on, logFx]
//	  - type: ticks
//	    count: 4
//
// Values seed stores by sid, the same way a serialized snapshot would.
//
// # Assertion Types
//
//   - state: subset match on the value of every named store
//   - snapshot: subset match on the snapshot archived after the run
//   - trace_count: the unit ran exactly N steps
//   - trace_order: the units first ran in this order
//   - ticks: the journal holds exactly N ticks for the scope
//
// # Trace
//
// The trace is recorded by kernel hooks. Node names are given relative to
// the program, so "counter/count.on" is recorded as "count.on". Effect
// durations are left out, which keeps the trace of a scenario stable
// across runs for golden file comparison.
//
// Every run uses a fixed scope id, a fresh in-memory store and a
// discarded logger.
package harness
