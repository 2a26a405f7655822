package fsm

import "time"

// OnTick dispatches one variable-rate tick to the top of the stack.
//
// The first tick an entry receives on this cadence goes to FirstTick (or
// Tick when the state has no FirstTick); later ones go to Tick. OnTick does
// not consult the paused flag.
func (m *Machine) OnTick(delta time.Duration) {
	m.dispatchTick(CadenceTick, delta)
}

// OnFixedTick dispatches one fixed-rate tick to the top of the stack.
//
// First-call tracking is independent of OnTick. States implementing
// FixedTicker or FirstFixedTicker receive fixed ticks there; others fall
// back to the OnTick callbacks.
func (m *Machine) OnFixedTick(delta time.Duration) {
	m.dispatchTick(CadenceFixedTick, delta)
}

// Dispatch routes delta to the entry point for cadence.
func (m *Machine) Dispatch(cadence Cadence, delta time.Duration) {
	switch cadence {
	case CadenceTick:
		m.OnTick(delta)
	case CadenceFixedTick:
		m.OnFixedTick(delta)
	}
}

// dispatchEnter enters the top entry if it has not been entered yet.
// The phase is recorded before Enter runs.
func (m *Machine) dispatchEnter() {
	top := len(m.stack) - 1
	if top < 0 || !m.stack[top].Phase.IsNone() {
		return
	}

	m.elapsed = 0
	m.stack[top].Phase = PhaseEntered
	s := m.stack[top].State

	m.logger.Debug("state entered",
		"machine", m.name,
		"state", string(KeyOf(s)),
		"depth", len(m.stack),
	)
	m.emit(Event{Kind: EventEntered, State: KeyOf(s)})

	s.Enter(m)
}

// dispatchExit exits the top entry if it is entered and not yet exited.
// Exited replaces every other phase bit.
func (m *Machine) dispatchExit() {
	top := len(m.stack) - 1
	if top < 0 {
		return
	}
	phase := m.stack[top].Phase
	if !phase.Has(PhaseEntered) || phase.Has(PhaseExited) {
		return
	}

	m.stack[top].Phase = PhaseExited
	s := m.stack[top].State

	m.logger.Debug("state exited",
		"machine", m.name,
		"state", string(KeyOf(s)),
		"depth", len(m.stack),
	)
	m.emit(Event{Kind: EventExited, State: KeyOf(s)})

	s.Exit(m)
}

// dispatchTick implements the first-call-then-repeat protocol shared by
// both cadences.
func (m *Machine) dispatchTick(cadence Cadence, delta time.Duration) {
	top := len(m.stack) - 1
	if top < 0 {
		return
	}
	phase := m.stack[top].Phase
	if !phase.Has(PhaseEntered) || phase.Has(PhaseExited) {
		return
	}
	if delta < 0 {
		delta = 0
	}

	m.elapsed += delta

	bit := cadence.phase()
	first := !phase.Has(bit)
	if first {
		m.stack[top].Phase = phase.With(bit)
	}
	s := m.stack[top].State

	m.emit(Event{
		Kind:    EventTicked,
		State:   KeyOf(s),
		Cadence: cadence,
		First:   first,
		Delta:   delta,
	})

	invokeTick(m, s, cadence, first, delta)
}

// invokeTick selects the callback for cadence, falling back toward Tick.
func invokeTick(m *Machine, s State, cadence Cadence, first bool, delta time.Duration) {
	if cadence == CadenceFixedTick {
		if first {
			if ft, ok := s.(FirstFixedTicker); ok {
				ft.FirstFixedTick(m, delta)
				return
			}
			if _, ok := s.(FixedTicker); !ok {
				if ft, ok := s.(FirstTicker); ok {
					ft.FirstTick(m, delta)
					return
				}
			}
		}
		if ft, ok := s.(FixedTicker); ok {
			ft.FixedTick(m, delta)
			return
		}
		s.Tick(m, delta)
		return
	}

	if first {
		if ft, ok := s.(FirstTicker); ok {
			ft.FirstTick(m, delta)
			return
		}
	}
	s.Tick(m, delta)
}
