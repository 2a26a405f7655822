package fsm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/testutil"
)

func TestDispatch_EmptyStackIsNoOp(t *testing.T) {
	m := fsm.New()

	assert.NotPanics(t, func() {
		m.OnTick(time.Second)
		m.OnFixedTick(time.Second)
	})
	assert.Equal(t, time.Duration(0), m.TimeInState())
}

func TestDispatch_FirstTickThenTick(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")

	m.OnTick(10 * time.Millisecond)
	m.OnTick(10 * time.Millisecond)
	m.OnTick(10 * time.Millisecond)

	assert.Equal(t, []string{"A.enter", "A.first_tick", "A.tick", "A.tick"}, j.Entries())
	assert.Equal(t, 30*time.Millisecond, m.TimeInState())
}

func TestDispatch_FirstTickDefaultsToTick(t *testing.T) {
	j := testutil.NewJournal()
	m := fsm.New(fsm.WithStates(&testutil.PlainSpy{Name: "P", Journal: j}))
	m.Push("P")

	m.OnTick(time.Millisecond)
	m.OnTick(time.Millisecond)

	assert.Equal(t, []string{"P.enter", "P.tick", "P.tick"}, j.Entries())
	phase, _ := m.PhaseOf("P")
	assert.True(t, phase.Has(fsm.PhaseUpdated))
}

func TestDispatch_CadenceIndependence(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")

	m.OnTick(time.Millisecond)
	m.OnFixedTick(time.Millisecond)
	m.OnTick(time.Millisecond)
	m.OnFixedTick(time.Millisecond)

	// SpyState has no fixed callbacks, so the fixed cadence falls back to
	// FirstTick/Tick with its own first-call tracking.
	assert.Equal(t, []string{
		"A.enter",
		"A.first_tick",
		"A.first_tick",
		"A.tick",
		"A.tick",
	}, j.Entries())

	phase, _ := m.PhaseOf("A")
	assert.Equal(t, fsm.PhaseEntered|fsm.PhaseUpdated|fsm.PhaseFixedUpdated, phase)
	assert.Equal(t, 4*time.Millisecond, m.TimeInState())
}

func TestDispatch_FixedCallbacks(t *testing.T) {
	j := testutil.NewJournal()
	m := fsm.New(fsm.WithStates(testutil.NewFixedSpy("F", j)))
	m.Push("F")

	m.OnFixedTick(20 * time.Millisecond)
	m.OnFixedTick(20 * time.Millisecond)
	m.OnTick(5 * time.Millisecond)

	assert.Equal(t, []string{
		"F.enter",
		"F.first_fixed_tick",
		"F.fixed_tick",
		"F.first_tick",
	}, j.Entries())
}

func TestDispatch_OnlyTopReceivesTicks(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B")
	m.Push("A")
	m.Push("B")
	j.Reset()

	m.OnTick(time.Millisecond)

	assert.Equal(t, []string{"B.first_tick"}, j.Entries())
}

func TestDispatch_ResumedEntryKeepsFirstTickState(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B")
	m.Push("A")
	m.OnTick(time.Millisecond)
	m.Push("B")
	m.Pop()
	j.Reset()

	m.OnTick(time.Millisecond)

	assert.Equal(t, []string{"A.tick"}, j.Entries(), "A already had its first tick")
}

func TestDispatch_TimeInStateResetsOnEnter(t *testing.T) {
	m, _, _ := newMachine(t, "A", "B")
	m.Push("A")
	m.OnTick(300 * time.Millisecond)

	m.Change("B")
	assert.Equal(t, time.Duration(0), m.TimeInState())

	m.OnFixedTick(20 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, m.TimeInState())
}

func TestDispatch_NegativeDeltaCountsAsZero(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")

	m.OnTick(-time.Second)

	assert.Equal(t, time.Duration(0), m.TimeInState())
	assert.Equal(t, 1, j.Count("A.first_tick"))
}

func TestDispatch_IgnoresPausedFlag(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")
	m.Pause(true)

	m.OnTick(time.Millisecond)

	assert.Equal(t, 1, j.Count("A.first_tick"), "gating is the driver's job")
}

func TestDispatch_Route(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")

	m.Dispatch(fsm.CadenceFixedTick, time.Millisecond)
	m.Dispatch(fsm.CadenceTick, time.Millisecond)
	m.Dispatch(fsm.Cadence(99), time.Millisecond)

	assert.Equal(t, []string{"A.enter", "A.first_tick", "A.first_tick"}, j.Entries())
	assert.Equal(t, 2*time.Millisecond, m.TimeInState())
}

// Every stack entry sees enter → first_tick? → tick* → exit, each of enter
// and exit exactly once, across an arbitrary mix of operations.
func TestDispatch_LifecycleOrdering(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B", "C")

	ops := []func(){
		func() { m.Push("A") },
		func() { m.OnTick(time.Millisecond) },
		func() { m.Push("B") },
		func() { m.OnTick(time.Millisecond) },
		func() { m.OnFixedTick(time.Millisecond) },
		func() { m.Change("C") },
		func() { m.OnTick(time.Millisecond) },
		func() { m.Pop() },
		func() { m.OnTick(time.Millisecond) },
		func() { m.Push("B") },
		func() { m.Pop() },
		func() { m.Pop() },
		func() { m.Pop() },
	}
	for _, op := range ops {
		op()
	}

	assertLifecycle(t, j.Entries(), "A")
	assertLifecycle(t, j.Entries(), "B")
	assertLifecycle(t, j.Entries(), "C")
}

// assertLifecycle checks the callback grammar for every lifetime of name.
func assertLifecycle(t *testing.T, entries []string, name string) {
	t.Helper()

	const (
		outside = iota
		entered
		ticking
	)
	state := outside
	for _, e := range entries {
		switch e {
		case name + ".enter":
			assert.Equal(t, outside, state, "%s entered twice", name)
			state = entered
		case name + ".first_tick":
			assert.NotEqual(t, outside, state, "%s ticked outside a lifetime", name)
			state = ticking
		case name + ".tick":
			assert.Equal(t, ticking, state, "%s tick before first_tick", name)
		case name + ".exit":
			assert.NotEqual(t, outside, state, "%s exited without enter", name)
			state = outside
		}
	}
	assert.Equal(t, outside, state, "%s never exited", name)
}
