package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/fsmstack/internal/fsm"
)

// ErrManualMode is returned by Run when the machine enables no cadence.
var ErrManualMode = errors.New("machine has no execution mode to schedule")

// Default tick intervals.
const (
	DefaultTickRate  = 16 * time.Millisecond
	DefaultFixedRate = 20 * time.Millisecond
)

// Clock is the time source a Runner schedules from.
// The returned function stops the ticker.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) (<-chan time.Time, func())
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// StepFunc observes one runner tick after dispatch. dispatched is false
// when the machine was paused.
type StepFunc func(cadence fsm.Cadence, delta time.Duration, dispatched bool)

// Runner drives a Machine from tickers until its context is done.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Submit(): safe from any goroutine
//   - Steps()/Skipped(): safe from any goroutine
type Runner struct {
	machine *fsm.Machine
	logger  *slog.Logger
	clock   Clock

	tickRate  time.Duration
	fixedRate time.Duration
	onStep    StepFunc

	tick  *Driver
	fixed *Driver
	queue *commandQueue
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces the wall clock. Tests pass a manual clock.
func WithClock(c Clock) RunnerOption {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithTickRate sets the variable cadence's ticker interval.
// Default: DefaultTickRate.
func WithTickRate(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.tickRate = d
		}
	}
}

// WithFixedRate sets the fixed cadence's interval, which is also the delta
// every fixed tick reports.
// Default: DefaultFixedRate.
func WithFixedRate(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.fixedRate = d
		}
	}
}

// WithOnStep installs a hook called after every tick.
func WithOnStep(fn StepFunc) RunnerOption {
	return func(r *Runner) {
		r.onStep = fn
	}
}

// WithRunnerLogger sets the logger.
// Default: slog.Default().
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner for m.
func NewRunner(m *fsm.Machine, opts ...RunnerOption) *Runner {
	r := &Runner{
		machine:   m,
		logger:    slog.Default(),
		clock:     systemClock{},
		tickRate:  DefaultTickRate,
		fixedRate: DefaultFixedRate,
		tick:      New(m, fsm.CadenceTick),
		fixed:     New(m, fsm.CadenceFixedTick),
		queue:     newCommandQueue(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit queues cmd to run on the runner goroutine between ticks.
// Returns false after Run has returned.
func (r *Runner) Submit(cmd Command) bool {
	if cmd == nil {
		return false
	}
	return r.queue.Enqueue(cmd)
}

// Steps returns how many ticks of cadence were dispatched.
func (r *Runner) Steps(cadence fsm.Cadence) int64 {
	if d := r.driver(cadence); d != nil {
		return d.Steps()
	}
	return 0
}

// Skipped returns how many ticks of cadence were dropped while paused.
func (r *Runner) Skipped(cadence fsm.Cadence) int64 {
	if d := r.driver(cadence); d != nil {
		return d.Skipped()
	}
	return 0
}

func (r *Runner) driver(cadence fsm.Cadence) *Driver {
	switch cadence {
	case fsm.CadenceTick:
		return r.tick
	case fsm.CadenceFixedTick:
		return r.fixed
	default:
		return nil
	}
}

// Run starts the machine and dispatches the cadences its modes enable
// until ctx is done, then returns ctx.Err().
//
// The variable cadence reports the time measured between ticks; the fixed
// cadence always reports the fixed interval. Commands queued with Submit
// run before the next tick. Run returns ErrManualMode without starting
// the machine when no cadence is enabled.
func (r *Runner) Run(ctx context.Context) error {
	defer r.queue.Close()

	modes := r.machine.Modes()
	if len(modes.Cadences()) == 0 {
		return fmt.Errorf("run %q: %w", r.machine.Name(), ErrManualMode)
	}

	r.logger.Info("runner starting",
		"machine", r.machine.Name(),
		"modes", modes.String(),
		"tick_rate", r.tickRate,
		"fixed_rate", r.fixedRate,
	)
	r.machine.Start()
	last := r.clock.Now()

	// A nil channel never fires, which disables the cadence.
	var tickC, fixedC <-chan time.Time
	if modes.Has(fsm.ModeUpdate) {
		c, stop := r.clock.NewTicker(r.tickRate)
		defer stop()
		tickC = c
	}
	if modes.Has(fsm.ModeFixedUpdate) {
		c, stop := r.clock.NewTicker(r.fixedRate)
		defer stop()
		fixedC = c
	}

	for {
		r.drain()

		select {
		case <-ctx.Done():
			r.queue.Close()
			r.drain()
			r.logger.Info("runner stopping",
				"machine", r.machine.Name(),
				"ticks", r.tick.Steps(),
				"fixed_ticks", r.fixed.Steps(),
			)
			return ctx.Err()

		case <-r.queue.Wait():

		case now := <-tickC:
			delta := now.Sub(last)
			last = now
			r.step(r.tick, delta)

		case <-fixedC:
			r.step(r.fixed, r.fixedRate)
		}
	}
}

func (r *Runner) step(d *Driver, delta time.Duration) {
	dispatched := d.Step(delta)
	if r.onStep != nil {
		r.onStep(d.Cadence(), delta, dispatched)
	}
}

// drain applies every queued command in submission order.
func (r *Runner) drain() {
	for {
		cmd, ok := r.queue.TryDequeue()
		if !ok {
			return
		}
		cmd(r.machine)
	}
}
