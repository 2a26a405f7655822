package scripted

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/fsmstack/internal/fsm"
)

// ActionKind names a machine operation a scripted state can issue.
type ActionKind string

const (
	ActionPush   ActionKind = "push"
	ActionPop    ActionKind = "pop"
	ActionChange ActionKind = "change"
	ActionPause  ActionKind = "pause"
	ActionResume ActionKind = "resume"
)

// Action is one compiled machine operation. Target is set for push and
// change only.
type Action struct {
	Kind   ActionKind
	Target fsm.Key
}

// String renders the action as "kind" or "kind:target".
func (a Action) String() string {
	if a.Target == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + string(a.Target)
}

// Rule fires Do once per entry when every set condition holds.
//
// After compares against the machine's time in state. Ticks counts
// dispatches received since entry, restricted to Cadence when it is
// non-zero.
type Rule struct {
	After   time.Duration
	Ticks   int
	Cadence fsm.Cadence
	Do      Action
}

// Spec is the compiled behavior of one scripted state.
type Spec struct {
	Name    string
	OnEnter []Action
	OnExit  []Action
	Rules   []Rule
}

// Targets returns every key named by a push or change action, in
// declaration order, without duplicates.
func (s Spec) Targets() []fsm.Key {
	var out []fsm.Key
	seen := make(map[fsm.Key]bool)
	add := func(a Action) {
		if a.Target != "" && !seen[a.Target] {
			seen[a.Target] = true
			out = append(out, a.Target)
		}
	}
	for _, a := range s.OnEnter {
		add(a)
	}
	for _, a := range s.OnExit {
		add(a)
	}
	for _, r := range s.Rules {
		add(r.Do)
	}
	return out
}

// StateSpec is the serialized form of a scripted state, shared by CUE
// machine definitions and YAML scenarios.
type StateSpec struct {
	OnEnter []ActionSpec `yaml:"on_enter,omitempty" json:"on_enter,omitempty"`
	OnExit  []ActionSpec `yaml:"on_exit,omitempty" json:"on_exit,omitempty"`
	Rules   []RuleSpec   `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// RuleSpec is the serialized form of a Rule. After is a Go duration
// string ("500ms").
type RuleSpec struct {
	After   string     `yaml:"after,omitempty" json:"after,omitempty"`
	Ticks   int        `yaml:"ticks,omitempty" json:"ticks,omitempty"`
	Cadence string     `yaml:"cadence,omitempty" json:"cadence,omitempty"`
	Do      ActionSpec `yaml:"do" json:"do"`
}

// ActionSpec is the serialized form of an Action. Exactly one field must
// be set.
type ActionSpec struct {
	Push   string `yaml:"push,omitempty" json:"push,omitempty"`
	Pop    bool   `yaml:"pop,omitempty" json:"pop,omitempty"`
	Change string `yaml:"change,omitempty" json:"change,omitempty"`
	Pause  bool   `yaml:"pause,omitempty" json:"pause,omitempty"`
	Resume bool   `yaml:"resume,omitempty" json:"resume,omitempty"`
}

// ValidationError reports an invalid field of a StateSpec.
type ValidationError struct {
	State   string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("state %s: %s: %s", e.State, e.Field, e.Message)
}

// Compile validates ss and converts it into a Spec named name.
func Compile(name string, ss StateSpec) (Spec, error) {
	if strings.TrimSpace(name) == "" {
		return Spec{}, &ValidationError{State: name, Field: "name", Message: "state name is required"}
	}

	spec := Spec{Name: name}

	var err error
	if spec.OnEnter, err = compileActions(name, "on_enter", ss.OnEnter); err != nil {
		return Spec{}, err
	}
	if spec.OnExit, err = compileActions(name, "on_exit", ss.OnExit); err != nil {
		return Spec{}, err
	}

	for i, rs := range ss.Rules {
		rule, err := compileRule(name, fmt.Sprintf("rules[%d]", i), rs)
		if err != nil {
			return Spec{}, err
		}
		spec.Rules = append(spec.Rules, rule)
	}

	return spec, nil
}

func compileActions(state, field string, specs []ActionSpec) ([]Action, error) {
	var out []Action
	for i, as := range specs {
		a, err := compileAction(state, fmt.Sprintf("%s[%d]", field, i), as)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func compileAction(state, field string, as ActionSpec) (Action, error) {
	var actions []Action
	if as.Push != "" {
		actions = append(actions, Action{Kind: ActionPush, Target: fsm.Key(as.Push)})
	}
	if as.Pop {
		actions = append(actions, Action{Kind: ActionPop})
	}
	if as.Change != "" {
		actions = append(actions, Action{Kind: ActionChange, Target: fsm.Key(as.Change)})
	}
	if as.Pause {
		actions = append(actions, Action{Kind: ActionPause})
	}
	if as.Resume {
		actions = append(actions, Action{Kind: ActionResume})
	}

	switch len(actions) {
	case 1:
		return actions[0], nil
	case 0:
		return Action{}, &ValidationError{State: state, Field: field, Message: "no action set"}
	default:
		return Action{}, &ValidationError{
			State:   state,
			Field:   field,
			Message: fmt.Sprintf("exactly one action allowed, got %d", len(actions)),
		}
	}
}

func compileRule(state, field string, rs RuleSpec) (Rule, error) {
	var rule Rule

	if rs.After != "" {
		d, err := time.ParseDuration(rs.After)
		if err != nil {
			return Rule{}, &ValidationError{State: state, Field: field + ".after", Message: err.Error()}
		}
		if d < 0 {
			return Rule{}, &ValidationError{State: state, Field: field + ".after", Message: "must not be negative"}
		}
		rule.After = d
	}

	if rs.Ticks < 0 {
		return Rule{}, &ValidationError{State: state, Field: field + ".ticks", Message: "must not be negative"}
	}
	rule.Ticks = rs.Ticks

	if rs.After == "" && rs.Ticks == 0 {
		return Rule{}, &ValidationError{State: state, Field: field, Message: "rule needs after or ticks"}
	}

	if rs.Cadence != "" {
		c, err := fsm.ParseCadence(rs.Cadence)
		if err != nil {
			return Rule{}, &ValidationError{State: state, Field: field + ".cadence", Message: err.Error()}
		}
		rule.Cadence = c
	}

	do, err := compileAction(state, field+".do", rs.Do)
	if err != nil {
		return Rule{}, err
	}
	rule.Do = do

	return rule, nil
}
