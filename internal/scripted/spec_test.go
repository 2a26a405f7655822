package scripted

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fsmstack/internal/fsm"
)

func TestCompile_FromYAML(t *testing.T) {
	src := `
on_enter:
  - push: Overlay
on_exit:
  - resume: true
rules:
  - after: 500ms
    do: {change: Run}
  - ticks: 3
    cadence: fixed_tick
    do: {pop: true}
`
	var ss StateSpec
	require.NoError(t, yaml.Unmarshal([]byte(src), &ss))

	spec, err := Compile("Idle", ss)
	require.NoError(t, err)

	assert.Equal(t, "Idle", spec.Name)
	assert.Equal(t, []Action{{Kind: ActionPush, Target: "Overlay"}}, spec.OnEnter)
	assert.Equal(t, []Action{{Kind: ActionResume}}, spec.OnExit)
	require.Len(t, spec.Rules, 2)
	assert.Equal(t, Rule{After: 500 * time.Millisecond, Do: Action{Kind: ActionChange, Target: "Run"}}, spec.Rules[0])
	assert.Equal(t, Rule{Ticks: 3, Cadence: fsm.CadenceFixedTick, Do: Action{Kind: ActionPop}}, spec.Rules[1])
	assert.Equal(t, []fsm.Key{"Overlay", "Run"}, spec.Targets())
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		state string
		spec  StateSpec
		field string
	}{
		{
			name:  "empty name",
			state: " ",
			field: "name",
		},
		{
			name:  "action with nothing set",
			state: "A",
			spec:  StateSpec{OnEnter: []ActionSpec{{}}},
			field: "on_enter[0]",
		},
		{
			name:  "action with two fields",
			state: "A",
			spec:  StateSpec{OnExit: []ActionSpec{{Pop: true, Push: "B"}}},
			field: "on_exit[0]",
		},
		{
			name:  "rule without condition",
			state: "A",
			spec:  StateSpec{Rules: []RuleSpec{{Do: ActionSpec{Pop: true}}}},
			field: "rules[0]",
		},
		{
			name:  "bad duration",
			state: "A",
			spec:  StateSpec{Rules: []RuleSpec{{After: "soon", Do: ActionSpec{Pop: true}}}},
			field: "rules[0].after",
		},
		{
			name:  "negative duration",
			state: "A",
			spec:  StateSpec{Rules: []RuleSpec{{After: "-1s", Do: ActionSpec{Pop: true}}}},
			field: "rules[0].after",
		},
		{
			name:  "negative ticks",
			state: "A",
			spec:  StateSpec{Rules: []RuleSpec{{Ticks: -1, Do: ActionSpec{Pop: true}}}},
			field: "rules[0].ticks",
		},
		{
			name:  "unknown cadence",
			state: "A",
			spec:  StateSpec{Rules: []RuleSpec{{Ticks: 1, Cadence: "hourly", Do: ActionSpec{Pop: true}}}},
			field: "rules[0].cadence",
		},
		{
			name:  "rule without action",
			state: "A",
			spec:  StateSpec{Rules: []RuleSpec{{Ticks: 1}}},
			field: "rules[0].do",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.state, tt.spec)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "pop", Action{Kind: ActionPop}.String())
	assert.Equal(t, "push:Jump", Action{Kind: ActionPush, Target: "Jump"}.String())
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{State: "Idle", Field: "rules[1].after", Message: "must not be negative"}
	assert.Equal(t, "state Idle: rules[1].after: must not be negative", err.Error())
}
