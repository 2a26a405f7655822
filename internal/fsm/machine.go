package fsm

import (
	"log/slog"
	"slices"
	"time"
)

// Machine is the state-stack execution engine for one driven entity.
//
// INVARIANTS:
//   - a Key is registered at most once
//   - a Key appears at most once anywhere in the stack
//   - only the top entry receives dispatch
//   - an entry whose phase has Exited is removed before Pop returns
//
// Machine is not safe for concurrent use. See the package documentation.
type Machine struct {
	name   string
	logger *slog.Logger

	states map[Key]State
	stack  []StateRef

	elapsed time.Duration
	paused  bool

	initial Key
	started bool
	modes   ExecutionModes

	listeners []Listener
}

// Option configures a Machine at construction.
type Option func(*Machine)

// WithName labels the machine in logs and events.
func WithName(name string) Option {
	return func(m *Machine) {
		m.name = name
	}
}

// WithLogger sets the logger used for diagnostics.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithStates registers a pre-built list of states, in order.
// Duplicates are skipped exactly as Register skips them.
func WithStates(states ...State) Option {
	return func(m *Machine) {
		m.RegisterAll(states...)
	}
}

// WithInitial selects the state Start pushes. The key is resolved when
// Start runs, so it may name a state registered by a later option.
func WithInitial(key Key) Option {
	return func(m *Machine) {
		m.initial = key
	}
}

// WithModes selects the cadences drivers should schedule.
// Default: ModeUpdate.
func WithModes(modes ExecutionModes) Option {
	return func(m *Machine) {
		m.modes = modes
	}
}

// WithListener appends a Listener. May be given more than once.
func WithListener(l Listener) Option {
	return func(m *Machine) {
		m.AddListener(l)
	}
}

// New creates a Machine with an empty stack.
// Options are applied in order.
func New(opts ...Option) *Machine {
	m := &Machine{
		logger: slog.Default(),
		states: make(map[Key]State),
		stack:  make([]StateRef, 0, 4),
		modes:  ModeUpdate,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Name returns the label given by WithName.
func (m *Machine) Name() string {
	return m.name
}

// Modes returns the execution modes drivers should schedule.
func (m *Machine) Modes() ExecutionModes {
	return m.modes
}

// AddListener appends a Listener. Nil listeners are ignored.
func (m *Machine) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.listeners = append(m.listeners, l)
}

// Register adds s under KeyOf(s).
// A nil state or an already registered key is a logged no-op.
func (m *Machine) Register(s State) {
	if s == nil {
		return
	}

	key := KeyOf(s)
	if _, exists := m.states[key]; exists {
		m.logger.Warn("state already registered",
			"machine", m.name,
			"state", string(key),
		)
		return
	}

	m.states[key] = s
	m.logger.Debug("state registered",
		"machine", m.name,
		"state", string(key),
	)
}

// RegisterAll registers each state in order.
func (m *Machine) RegisterAll(states ...State) {
	for _, s := range states {
		m.Register(s)
	}
}

// Contains reports whether a State is registered under key.
func (m *Machine) Contains(key Key) bool {
	_, ok := m.states[key]
	return ok
}

// Keys returns the registered keys in sorted order.
func (m *Machine) Keys() []Key {
	keys := make([]Key, 0, len(m.states))
	for k := range m.states {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetInitial selects the state Start pushes. Unregistered keys are
// rejected and leave the previous selection in place.
func (m *Machine) SetInitial(key Key) bool {
	if !m.Contains(key) {
		m.logger.Debug("initial state not registered",
			"machine", m.name,
			"state", string(key),
		)
		return false
	}
	m.initial = key
	return true
}

// Initial returns the configured initial key, which may be empty.
func (m *Machine) Initial() Key {
	return m.initial
}

// Start pushes the initial state, once. Later calls are no-ops.
//
// An unset or unregistered initial key leaves the stack empty.
func (m *Machine) Start() {
	if m.started {
		return
	}
	m.started = true

	if m.initial == "" {
		return
	}
	if !m.Contains(m.initial) {
		m.logger.Warn("initial state not resolved",
			"machine", m.name,
			"state", string(m.initial),
		)
		return
	}

	m.Push(m.initial)
}

// Started reports whether Start has run.
func (m *Machine) Started() bool {
	return m.started
}

// Push stacks the state registered under key and enters it.
//
// Push is a no-op if key is not registered or if an entry with key is
// already anywhere in the stack, including the top.
func (m *Machine) Push(key Key) {
	s, ok := m.states[key]
	if !ok {
		m.logger.Debug("push rejected: state not registered",
			"machine", m.name,
			"state", string(key),
		)
		return
	}
	if m.indexOf(key) >= 0 {
		m.logger.Debug("push rejected: state already stacked",
			"machine", m.name,
			"state", string(key),
		)
		return
	}

	m.stack = append(m.stack, StateRef{State: s, Phase: PhaseNone})
	m.dispatchEnter()
}

// Pop exits the top state and removes it from the stack.
//
// Pop is a no-op on an empty stack, and while the top is already exiting
// (a Pop issued from inside that state's Exit). No state is entered
// afterwards; the entry beneath, if any, becomes top with its phase
// untouched.
func (m *Machine) Pop() {
	if len(m.stack) == 0 {
		return
	}

	top := m.stack[len(m.stack)-1]
	if top.Phase.Has(PhaseExited) {
		return
	}

	m.dispatchExit()

	// Exit may have pushed on top of the exiting entry; remove it by identity.
	if i := m.indexOf(top.Key()); i >= 0 && m.stack[i].Phase.Has(PhaseExited) {
		m.stack = slices.Delete(m.stack, i, i+1)
		m.emit(Event{Kind: EventPopped, State: top.Key()})
	}
}

// Change replaces the top of the stack with the state registered under key.
//
// It is Pop followed by Push, applied only when key is registered and is
// not already the current top. Entries beneath the top are untouched, so
// changing to a key stacked lower down pops the top and then rejects the
// push.
func (m *Machine) Change(key Key) {
	if !m.Contains(key) {
		m.logger.Debug("change rejected: state not registered",
			"machine", m.name,
			"state", string(key),
		)
		return
	}
	if m.IsCurrent(key) {
		return
	}

	m.Pop()
	m.Push(key)
}

// IsCurrent reports whether the top of the stack is registered under key.
func (m *Machine) IsCurrent(key Key) bool {
	if len(m.stack) == 0 {
		return false
	}
	return m.stack[len(m.stack)-1].Key() == key
}

// Current returns the top state, or nil when the stack is empty.
func (m *Machine) Current() State {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1].State
}

// TryCurrent returns the top state and whether there is one.
func (m *Machine) TryCurrent() (State, bool) {
	s := m.Current()
	return s, s != nil
}

// HasCurrent reports whether the stack is non-empty.
func (m *Machine) HasCurrent() bool {
	return len(m.stack) > 0
}

// Depth returns the number of stacked entries.
func (m *Machine) Depth() int {
	return len(m.stack)
}

// Stack returns a copy of the stack, bottom first.
func (m *Machine) Stack() []StateRef {
	return slices.Clone(m.stack)
}

// PhaseOf returns the phase of the stacked entry for key.
func (m *Machine) PhaseOf(key Key) (Phase, bool) {
	i := m.indexOf(key)
	if i < 0 {
		return PhaseNone, false
	}
	return m.stack[i].Phase, true
}

// Pause sets the paused flag. Listeners are notified only when the value
// changes. Dispatch methods ignore the flag; drivers consult IsPaused.
func (m *Machine) Pause(value bool) {
	if m.paused == value {
		return
	}
	m.paused = value

	kind := EventResumed
	if value {
		kind = EventPaused
	}
	m.emit(Event{Kind: kind})
}

// IsPaused reports the paused flag.
func (m *Machine) IsPaused() bool {
	return m.paused
}

// TimeInState returns the time accumulated since the most recent entry was
// entered.
func (m *Machine) TimeInState() time.Duration {
	return m.elapsed
}

// indexOf returns the stack index of key, searching from the top, or -1.
func (m *Machine) indexOf(key Key) int {
	for i := len(m.stack) - 1; i >= 0; i-- {
		if m.stack[i].Key() == key {
			return i
		}
	}
	return -1
}

// emit fills in the machine-level fields and fans ev out to listeners.
func (m *Machine) emit(ev Event) {
	if len(m.listeners) == 0 {
		return
	}
	ev.Machine = m.name
	ev.TimeInState = m.elapsed
	ev.Depth = len(m.stack)
	for _, l := range m.listeners {
		l.OnEvent(ev)
	}
}
