package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/testutil"
)

func spyFactory(name string, j *testutil.Journal) Factory {
	return func() fsm.State { return testutil.NewSpyState(name, j) }
}

func TestCatalog_RegisterAndResolve(t *testing.T) {
	c := New()
	require.NoError(t, c.Register("Idle", spyFactory("Idle", nil)))
	require.NoError(t, c.Register("Run", spyFactory("Run", nil)))

	key, ok := c.Resolve("Run")
	assert.True(t, ok)
	assert.Equal(t, fsm.Key("Run"), key)

	_, ok = c.Resolve("Jump")
	assert.False(t, ok)

	assert.Equal(t, []string{"Idle", "Run"}, c.Names())
	assert.Equal(t, 2, c.Len())
}

func TestCatalog_RegisterErrors(t *testing.T) {
	c := New()
	require.NoError(t, c.Register("Idle", spyFactory("Idle", nil)))

	err := c.Register("Idle", spyFactory("Idle", nil))
	assert.ErrorIs(t, err, ErrDuplicate)

	assert.Error(t, c.Register("", spyFactory("x", nil)))
	assert.Error(t, c.Register("Nil", nil))
}

func TestCatalog_MustRegisterPanicsOnDuplicate(t *testing.T) {
	c := New()
	c.MustRegister("Idle", spyFactory("Idle", nil))

	assert.Panics(t, func() { c.MustRegister("Idle", spyFactory("Idle", nil)) })
}

func TestCatalog_BuildFreshInstances(t *testing.T) {
	c := New()
	c.MustRegister("Idle", spyFactory("Idle", nil))

	first, err := c.Build()
	require.NoError(t, err)
	second, err := c.Build()
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.NotSame(t, first[0], second[0])
}

func TestCatalog_BuildKeyMismatch(t *testing.T) {
	c := New()
	c.MustRegister("Idle", spyFactory("Other", nil))

	_, err := c.Build()
	assert.ErrorContains(t, err, `state reports key "Other"`)
}

func TestCatalog_BuildNilState(t *testing.T) {
	c := New()
	c.MustRegister("Idle", func() fsm.State { return nil })

	_, err := c.Build()
	assert.ErrorContains(t, err, "factory returned nil")
}

func TestCatalog_NewMachine(t *testing.T) {
	j := testutil.NewJournal()
	c := New()
	c.MustRegister("Idle", spyFactory("Idle", j))
	c.MustRegister("Run", spyFactory("Run", j))

	m, err := c.NewMachine(fsm.WithName("player"), fsm.WithInitial("Idle"))
	require.NoError(t, err)

	m.Start()
	m.Change("Run")

	assert.Equal(t, "player", m.Name())
	assert.True(t, m.IsCurrent("Run"))
	assert.Equal(t, []string{"Idle.enter", "Idle.exit", "Run.enter"}, j.Entries())
}

func TestCatalog_Instance(t *testing.T) {
	c := New()
	c.MustRegister("Idle", spyFactory("Idle", nil))

	a, err := c.Instance("Idle")
	require.NoError(t, err)
	b, err := c.Instance("Idle")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = c.Instance("Run")
	assert.Error(t, err)
}
