// Package harness provides conformance testing for state machines.
//
// A scenario builds one Machine from inline scripted states or from a
// compiled CUE machine, drives it step by step and asserts on the recorded
// lifecycle trace and the final stack.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: jump_and_land
//	description: "Run pushes Jump, which pops itself after three fixed ticks"
//	initial: Idle
//	states:
//	  - name: Idle
//	    rules: [{after: 30ms, do: {change: Run}}]
//	  - name: Run
//	    on_enter: [{push: Jump}]
//	  - name: Jump
//	    rules: [{ticks: 3, cadence: fixed_tick, do: {pop: true}}]
//	steps:
//	  - start: true
//	  - tick: 10ms
//	    repeat: 3
//	    expect: {current: Jump, depth: 2}
//	  - fixed_tick: 20ms
//	    repeat: 3
//	    expect: {current: Run}
//	assertions:
//	  - type: trace_order
//	    events: ["entered:Idle", "exited:Idle", "entered:Run", "entered:Jump", "exited:Jump"]
//	  - type: final_state
//	    stack: [Run]
//
// A scenario may instead set "machine: player" to use a machine from the
// config directory. "register" limits the states registered up front;
// the rest can be added with a register step.
//
// Steps: register, start, push, pop, change, tick, fixed_tick, drive,
// drive_fixed and pause, each optionally with repeat. tick and fixed_tick
// dispatch directly; drive and drive_fixed go through a driver and are
// skipped while the machine is paused.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: an event matching "kind[:State][@cadence]" appears
//   - trace_order: events appear in the given order, not necessarily adjacent
//   - trace_count: an event appears exactly N times
//   - final_state: the final stack (bottom first) and paused flag
//
// # Deterministic Testing
//
// The harness uses:
//   - A fixed run ID (scenario.run_id, or "test-run-default")
//   - The trace package's logical clock for record seqs
//   - Scenario-supplied deltas instead of wall time
//   - In-memory SQLite database (isolated per run)
//
// The same scenario therefore always produces the same trace, which
// RunWithGolden compares against testdata/golden.
package harness
