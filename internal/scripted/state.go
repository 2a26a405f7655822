// Package scripted provides fsm.States whose behavior is declared as data.
//
// A scripted state runs a list of actions on enter and on exit, and fires
// rules while it is on top of the stack. A rule fires at most once per
// entry, when the machine's time in state and the number of ticks the
// state has received reach the rule's thresholds. Actions call back into
// the machine from inside the callback, so every rule exercises the
// machine's reentrancy.
package scripted

import (
	"log/slog"
	"time"

	"github.com/roach88/fsmstack/internal/fsm"
)

// State is a data-driven fsm.State.
//
// State implements fsm.FixedTicker so it can count the two cadences
// separately. It has no first-tick callbacks; first ticks count like any
// other.
type State struct {
	spec   Spec
	logger *slog.Logger

	ticks map[fsm.Cadence]int
	total int
	fired []bool
}

// Option configures a State.
type Option func(*State)

// WithLogger sets the logger used when rules fire.
func WithLogger(logger *slog.Logger) Option {
	return func(s *State) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a State running spec.
func New(spec Spec, opts ...Option) *State {
	s := &State{
		spec:   spec,
		logger: slog.Default(),
		ticks:  make(map[fsm.Cadence]int, 2),
		fired:  make([]bool, len(spec.Rules)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Factory returns a constructor producing a fresh State per call, in the
// shape catalog.Register expects.
func (s Spec) Factory(opts ...Option) func() fsm.State {
	return func() fsm.State {
		return New(s, opts...)
	}
}

// Spec returns the compiled behavior.
func (s *State) Spec() Spec {
	return s.spec
}

// Key implements fsm.Keyed.
func (s *State) Key() fsm.Key {
	return fsm.Key(s.spec.Name)
}

// Ticks returns the number of ticks received on cadence since the last
// entry. A zero cadence returns the total across both.
func (s *State) Ticks(cadence fsm.Cadence) int {
	if cadence == 0 {
		return s.total
	}
	return s.ticks[cadence]
}

// Enter resets per-entry counters and runs the on_enter actions.
func (s *State) Enter(m *fsm.Machine) {
	clear(s.ticks)
	clear(s.fired)
	s.total = 0

	s.run(m, s.spec.OnEnter)
}

// Tick implements fsm.State.
func (s *State) Tick(m *fsm.Machine, _ time.Duration) {
	s.step(m, fsm.CadenceTick)
}

// FixedTick implements fsm.FixedTicker.
func (s *State) FixedTick(m *fsm.Machine, _ time.Duration) {
	s.step(m, fsm.CadenceFixedTick)
}

// Exit runs the on_exit actions.
func (s *State) Exit(m *fsm.Machine) {
	s.run(m, s.spec.OnExit)
}

// step counts one tick and fires ready rules in declaration order. It
// stops as soon as an action moves this state off the top.
func (s *State) step(m *fsm.Machine, cadence fsm.Cadence) {
	s.ticks[cadence]++
	s.total++

	key := s.Key()
	for i, rule := range s.spec.Rules {
		if s.fired[i] || !s.ready(m, rule) {
			continue
		}
		s.fired[i] = true

		s.logger.Debug("rule fired",
			"machine", m.Name(),
			"state", string(key),
			"rule", i,
			"action", rule.Do.String(),
		)
		apply(m, rule.Do)

		if !m.IsCurrent(key) {
			return
		}
	}
}

func (s *State) ready(m *fsm.Machine, rule Rule) bool {
	if rule.After > 0 && m.TimeInState() < rule.After {
		return false
	}
	if rule.Ticks > 0 && s.Ticks(rule.Cadence) < rule.Ticks {
		return false
	}
	return true
}

func (s *State) run(m *fsm.Machine, actions []Action) {
	for _, a := range actions {
		apply(m, a)
	}
}

// apply issues a onto m.
func apply(m *fsm.Machine, a Action) {
	switch a.Kind {
	case ActionPush:
		m.Push(a.Target)
	case ActionPop:
		m.Pop()
	case ActionChange:
		m.Change(a.Target)
	case ActionPause:
		m.Pause(true)
	case ActionResume:
		m.Pause(false)
	}
}
