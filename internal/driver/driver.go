// Package driver feeds ticks to a Machine.
//
// A Driver binds one cadence to a Machine and skips dispatch while the
// machine is paused. A Runner schedules one or both cadences from tickers
// on a single goroutine and applies commands submitted from other
// goroutines between ticks, so the Machine itself is never touched
// concurrently.
package driver

import (
	"sync/atomic"
	"time"

	"github.com/roach88/fsmstack/internal/fsm"
)

// Driver dispatches one cadence to a Machine.
//
// Step must be called from the goroutine that owns the Machine. Steps and
// Skipped are safe to read from any goroutine.
type Driver struct {
	machine *fsm.Machine
	cadence fsm.Cadence

	steps   atomic.Int64
	skipped atomic.Int64
}

// New creates a Driver for cadence.
func New(m *fsm.Machine, cadence fsm.Cadence) *Driver {
	return &Driver{machine: m, cadence: cadence}
}

// Cadence returns the cadence this driver dispatches.
func (d *Driver) Cadence() fsm.Cadence {
	return d.cadence
}

// Step dispatches delta unless the machine is paused. It reports whether
// the machine was dispatched.
func (d *Driver) Step(delta time.Duration) bool {
	if d.machine.IsPaused() {
		d.skipped.Add(1)
		return false
	}
	d.machine.Dispatch(d.cadence, delta)
	d.steps.Add(1)
	return true
}

// Steps returns how many ticks were dispatched.
func (d *Driver) Steps() int64 {
	return d.steps.Load()
}

// Skipped returns how many ticks were dropped while paused.
func (d *Driver) Skipped() int64 {
	return d.skipped.Load()
}
