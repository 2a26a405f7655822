// Package fsm implements the state-stack execution engine.
//
// A Machine owns a registry of States and a LIFO stack of StateRefs. Only
// the top of the stack receives dispatch. Each stack entry carries a Phase
// that records how far through its lifecycle it has advanced, so every
// callback fires in order and at most once where required:
//
//	Enter → (FirstTick | nothing) → Tick* → Exit
//
// # Dispatch Protocol
//
// The host (usually through package driver) calls OnTick and/or OnFixedTick
// once per external tick. Each cadence tracks its own first call through a
// separate phase bit, so a state driven by both cadences sees one FirstTick
// per cadence.
//
// # Reentrancy
//
// State callbacks receive the Machine and may call Push, Pop or Change on
// it. Those calls run synchronously and immediately. A callback must not
// assume the stack is unchanged after calling into a transition.
//
// # Concurrency
//
// The engine is single-threaded and cooperative. Machine performs no
// locking. All transition and dispatch calls must come from one logical
// thread. Reentrant calls from a callback on that thread are fine.
//
// # Error Handling
//
// Nothing in this package returns an error. Authoring mistakes such as
// duplicate registration, unknown keys or pushing a stacked key are no-ops
// surfaced through the logger. A panic raised by a State callback is not
// recovered.
package fsm
