package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/fsmstack/internal/fsm"
)

// Journal is an ordered log of callbacks shared by several SpyStates.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Add appends an entry.
func (j *Journal) Add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of the log.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// Count returns how many times entry was logged.
func (j *Journal) Count(entry string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, e := range j.entries {
		if e == entry {
			n++
		}
	}
	return n
}

// Reset clears the log.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// SpyState is a Keyed fsm.State that logs every callback as
// "<name>.<callback>" into a Journal. Hooks run after logging and let a
// test drive reentrant transitions.
//
// SpyState implements FirstTicker. Use PlainSpy for a state without it and
// FixedSpy for one with distinct fixed-rate callbacks.
type SpyState struct {
	Name    string
	Journal *Journal

	OnEnter     func(m *fsm.Machine)
	OnFirstTick func(m *fsm.Machine, delta time.Duration)
	OnTick      func(m *fsm.Machine, delta time.Duration)
	OnExit      func(m *fsm.Machine)
}

// NewSpyState creates a spy named name logging into j.
func NewSpyState(name string, j *Journal) *SpyState {
	return &SpyState{Name: name, Journal: j}
}

// Key implements fsm.Keyed.
func (s *SpyState) Key() fsm.Key { return fsm.Key(s.Name) }

// Enter implements fsm.State.
func (s *SpyState) Enter(m *fsm.Machine) {
	s.log("enter")
	if s.OnEnter != nil {
		s.OnEnter(m)
	}
}

// FirstTick implements fsm.FirstTicker.
func (s *SpyState) FirstTick(m *fsm.Machine, delta time.Duration) {
	s.log("first_tick")
	if s.OnFirstTick != nil {
		s.OnFirstTick(m, delta)
	}
}

// Tick implements fsm.State.
func (s *SpyState) Tick(m *fsm.Machine, delta time.Duration) {
	s.log("tick")
	if s.OnTick != nil {
		s.OnTick(m, delta)
	}
}

// Exit implements fsm.State.
func (s *SpyState) Exit(m *fsm.Machine) {
	s.log("exit")
	if s.OnExit != nil {
		s.OnExit(m)
	}
}

func (s *SpyState) log(callback string) {
	if s.Journal != nil {
		s.Journal.Add(fmt.Sprintf("%s.%s", s.Name, callback))
	}
}

// PlainSpy logs Enter, Tick and Exit only; it has no FirstTick, so the
// machine delivers first ticks to Tick.
type PlainSpy struct {
	Name    string
	Journal *Journal
}

// Key implements fsm.Keyed.
func (s *PlainSpy) Key() fsm.Key { return fsm.Key(s.Name) }

// Enter implements fsm.State.
func (s *PlainSpy) Enter(*fsm.Machine) { s.Journal.Add(s.Name + ".enter") }

// Tick implements fsm.State.
func (s *PlainSpy) Tick(*fsm.Machine, time.Duration) { s.Journal.Add(s.Name + ".tick") }

// Exit implements fsm.State.
func (s *PlainSpy) Exit(*fsm.Machine) { s.Journal.Add(s.Name + ".exit") }

// FixedSpy is a SpyState that also handles the fixed-rate cadence through
// FirstFixedTick and FixedTick.
type FixedSpy struct {
	SpyState
}

// NewFixedSpy creates a fixed-aware spy named name logging into j.
func NewFixedSpy(name string, j *Journal) *FixedSpy {
	return &FixedSpy{SpyState: SpyState{Name: name, Journal: j}}
}

// FirstFixedTick implements fsm.FirstFixedTicker.
func (s *FixedSpy) FirstFixedTick(*fsm.Machine, time.Duration) { s.log("first_fixed_tick") }

// FixedTick implements fsm.FixedTicker.
func (s *FixedSpy) FixedTick(*fsm.Machine, time.Duration) { s.log("fixed_tick") }
