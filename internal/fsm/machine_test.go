package fsm_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMachine builds a machine with one spy per name, all sharing a journal.
func newMachine(t *testing.T, names ...string) (*fsm.Machine, *testutil.Journal, map[string]*testutil.SpyState) {
	t.Helper()
	j := testutil.NewJournal()
	spies := make(map[string]*testutil.SpyState, len(names))
	states := make([]fsm.State, 0, len(names))
	for _, name := range names {
		s := testutil.NewSpyState(name, j)
		spies[name] = s
		states = append(states, s)
	}
	m := fsm.New(fsm.WithName("test"), fsm.WithLogger(quietLogger()), fsm.WithStates(states...))
	return m, j, spies
}

func keys(m *fsm.Machine) []fsm.Key {
	var out []fsm.Key
	for _, ref := range m.Stack() {
		out = append(out, ref.Key())
	}
	return out
}

func TestMachine_New(t *testing.T) {
	m := fsm.New()

	assert.False(t, m.HasCurrent())
	assert.Nil(t, m.Current())
	assert.Equal(t, 0, m.Depth())
	assert.Equal(t, fsm.ModeUpdate, m.Modes())
	assert.False(t, m.IsPaused())
	assert.Equal(t, time.Duration(0), m.TimeInState())
}

func TestMachine_RegisterAndContains(t *testing.T) {
	m, _, _ := newMachine(t, "A", "B")

	assert.True(t, m.Contains("A"))
	assert.True(t, m.Contains("B"))
	assert.False(t, m.Contains("Unregistered"))
	assert.Equal(t, []fsm.Key{"A", "B"}, m.Keys())
}

func TestMachine_DuplicateRegistrationIsNoOp(t *testing.T) {
	j := testutil.NewJournal()
	first := testutil.NewSpyState("A", j)
	second := testutil.NewSpyState("A", j)

	m := fsm.New(fsm.WithLogger(quietLogger()))
	m.Register(first)
	m.Register(second)
	m.Register(nil)

	assert.Equal(t, []fsm.Key{"A"}, m.Keys())

	m.Push("A")
	assert.Same(t, first, m.Current(), "first registration wins")
}

func TestMachine_PushEntersState(t *testing.T) {
	m, j, spies := newMachine(t, "A")

	m.Push("A")

	assert.Same(t, spies["A"], m.Current())
	assert.True(t, m.IsCurrent("A"))
	phase, ok := m.PhaseOf("A")
	require.True(t, ok)
	assert.Equal(t, fsm.PhaseEntered, phase)
	assert.Equal(t, []string{"A.enter"}, j.Entries())
}

func TestMachine_PushUnregisteredIsNoOp(t *testing.T) {
	m, j, _ := newMachine(t, "A")

	m.Push("Unregistered")

	assert.False(t, m.HasCurrent())
	assert.False(t, m.Contains("Unregistered"))
	assert.Equal(t, []fsm.Key{"A"}, m.Keys(), "registry untouched")
	assert.Empty(t, j.Entries())
}

func TestMachine_PushCurrentTopIsNoOp(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")
	m.OnTick(10 * time.Millisecond)
	before, _ := m.PhaseOf("A")

	m.Push("A")

	after, _ := m.PhaseOf("A")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, m.Depth())
	assert.Equal(t, 1, j.Count("A.enter"))
}

func TestMachine_PushStackedBelowIsNoOp(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B")
	m.Push("A")
	m.Push("B")

	m.Push("A")

	assert.Equal(t, []fsm.Key{"A", "B"}, keys(m))
	assert.Equal(t, 1, j.Count("A.enter"))
}

func TestMachine_UniquenessAcrossPushSequences(t *testing.T) {
	m, _, _ := newMachine(t, "A", "B", "C")
	sequence := []fsm.Key{"A", "B", "A", "C", "B", "C", "A"}

	for _, k := range sequence {
		m.Push(k)

		seen := map[fsm.Key]bool{}
		for _, ref := range m.Stack() {
			require.False(t, seen[ref.Key()], "key %s stacked twice", ref.Key())
			seen[ref.Key()] = true
		}
	}
	assert.Equal(t, []fsm.Key{"A", "B", "C"}, keys(m))
}

func TestMachine_PopExitsAndRemoves(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")

	m.Pop()

	assert.False(t, m.HasCurrent())
	assert.Equal(t, []string{"A.enter", "A.exit"}, j.Entries())
	_, ok := m.PhaseOf("A")
	assert.False(t, ok)
}

func TestMachine_PopEmptyIsSafe(t *testing.T) {
	m, j, _ := newMachine(t, "A")

	assert.NotPanics(t, func() {
		m.Pop()
		m.Pop()
	})
	assert.Empty(t, j.Entries())
}

func TestMachine_PopDoesNotAutoEnter(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B")
	m.Push("A")
	m.Push("B")
	j.Reset()

	m.Pop()

	assert.True(t, m.IsCurrent("A"))
	assert.Equal(t, []string{"B.exit"}, j.Entries(), "A must not be re-entered")
}

func TestMachine_ChangeReplacesTop(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B")
	m.Push("A")

	m.Change("B")

	assert.Equal(t, []fsm.Key{"B"}, keys(m))
	assert.Equal(t, []string{"A.enter", "A.exit", "B.enter"}, j.Entries())
}

func TestMachine_ChangeToCurrentIsNoOp(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")

	m.Change("A")

	assert.Equal(t, []fsm.Key{"A"}, keys(m))
	assert.Equal(t, []string{"A.enter"}, j.Entries())
}

func TestMachine_ChangeUnregisteredIsNoOp(t *testing.T) {
	m, j, _ := newMachine(t, "A")
	m.Push("A")

	m.Change("Unregistered")

	assert.Equal(t, []fsm.Key{"A"}, keys(m))
	assert.Equal(t, []string{"A.enter"}, j.Entries())
}

func TestMachine_ChangeOnEmptyStackPushes(t *testing.T) {
	m, j, _ := newMachine(t, "A")

	m.Change("A")

	assert.True(t, m.IsCurrent("A"))
	assert.Equal(t, []string{"A.enter"}, j.Entries())
}

func TestMachine_ChangeOnlyTouchesTop(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B", "C")
	m.Push("A")
	m.Push("B")
	j.Reset()

	m.Change("C")

	assert.Equal(t, []fsm.Key{"A", "C"}, keys(m))
	assert.Equal(t, []string{"B.exit", "C.enter"}, j.Entries())
}

func TestMachine_ChangeToKeyStackedBelow(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B")
	m.Push("A")
	m.Push("B")
	j.Reset()

	m.Change("A")

	// B is popped; the push of A is rejected because A is still stacked.
	assert.Equal(t, []fsm.Key{"A"}, keys(m))
	assert.Equal(t, []string{"B.exit"}, j.Entries())
}

func TestMachine_TryCurrent(t *testing.T) {
	m, _, spies := newMachine(t, "A")

	s, ok := m.TryCurrent()
	assert.False(t, ok)
	assert.Nil(t, s)

	m.Push("A")
	s, ok = m.TryCurrent()
	assert.True(t, ok)
	assert.Same(t, spies["A"], s)
}

func TestMachine_IsCurrentOnEmptyStack(t *testing.T) {
	m, _, _ := newMachine(t, "A")
	assert.False(t, m.IsCurrent("A"))
}

func TestMachine_StackIsACopy(t *testing.T) {
	m, _, _ := newMachine(t, "A")
	m.Push("A")

	snapshot := m.Stack()
	snapshot[0].Phase = fsm.PhaseExited

	phase, _ := m.PhaseOf("A")
	assert.Equal(t, fsm.PhaseEntered, phase)
}

func TestMachine_StartPushesInitialOnce(t *testing.T) {
	j := testutil.NewJournal()
	m := fsm.New(
		fsm.WithLogger(quietLogger()),
		fsm.WithInitial("A"),
		fsm.WithStates(testutil.NewSpyState("A", j)),
	)

	m.Start()
	m.Pop()
	m.Start()

	assert.True(t, m.Started())
	assert.False(t, m.HasCurrent(), "second Start must not push again")
	assert.Equal(t, []string{"A.enter", "A.exit"}, j.Entries())
}

func TestMachine_StartWithoutInitial(t *testing.T) {
	m, j, _ := newMachine(t, "A")

	m.Start()

	assert.False(t, m.HasCurrent())
	assert.Empty(t, j.Entries())
}

func TestMachine_StartWithUnresolvedInitial(t *testing.T) {
	m := fsm.New(fsm.WithLogger(quietLogger()), fsm.WithInitial("Missing"))

	assert.NotPanics(t, m.Start)
	assert.False(t, m.HasCurrent())
}

func TestMachine_SetInitial(t *testing.T) {
	m, _, _ := newMachine(t, "A", "B")

	assert.True(t, m.SetInitial("B"))
	assert.False(t, m.SetInitial("Missing"))
	assert.Equal(t, fsm.Key("B"), m.Initial())

	m.Start()
	assert.True(t, m.IsCurrent("B"))
}

func TestMachine_PauseNotifiesOnlyOnChange(t *testing.T) {
	var events []fsm.EventKind
	m := fsm.New(fsm.WithListener(fsm.ListenerFunc(func(ev fsm.Event) {
		events = append(events, ev.Kind)
	})))

	m.Pause(true)
	m.Pause(true)
	m.Pause(false)
	m.Pause(false)

	assert.False(t, m.IsPaused())
	assert.Equal(t, []fsm.EventKind{fsm.EventPaused, fsm.EventResumed}, events)
}

func TestMachine_TransitionsWhilePaused(t *testing.T) {
	m, j, _ := newMachine(t, "A", "B")
	m.Pause(true)

	m.Push("A")
	m.Change("B")
	m.Pop()

	assert.Equal(t, []string{"A.enter", "A.exit", "B.enter", "B.exit"}, j.Entries())
}

// Scenario from the engine's contract: stacking A and B, ticking, popping
// back and an idempotent change.
func TestMachine_StackingScenario(t *testing.T) {
	m, j, spies := newMachine(t, "A", "B")

	m.Push("A")
	assert.Same(t, spies["A"], m.Current())
	phase, _ := m.PhaseOf("A")
	assert.Equal(t, fsm.PhaseEntered, phase)

	m.OnTick(100 * time.Millisecond)
	assert.Equal(t, 1, j.Count("A.first_tick"))
	assert.Equal(t, 100*time.Millisecond, m.TimeInState())

	m.Push("B")
	assert.Same(t, spies["B"], m.Current())
	phase, _ = m.PhaseOf("A")
	assert.Equal(t, fsm.PhaseEntered|fsm.PhaseUpdated, phase)
	assert.Equal(t, 0, j.Count("A.exit"))

	m.Pop()
	assert.Equal(t, 1, j.Count("B.exit"))
	assert.Same(t, spies["A"], m.Current())
	assert.Equal(t, 1, j.Count("A.enter"), "A is not re-entered")
	phaseAfter, _ := m.PhaseOf("A")
	assert.Equal(t, phase, phaseAfter)

	before := m.Stack()
	m.Change("A")
	assert.Equal(t, before, m.Stack())
}
