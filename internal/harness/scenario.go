package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/scripted"
)

// Scenario defines a conformance test scenario.
// A scenario builds one machine, drives it through a list of steps and
// asserts on the recorded lifecycle trace and the final stack.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// file and, for inline machines, the machine itself.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Machine names a machine from the config directory. Mutually
	// exclusive with States.
	Machine string `yaml:"machine,omitempty"`

	// States declares the machine's scripted states inline, in
	// registration order.
	States []StateDecl `yaml:"states,omitempty"`

	// Initial overrides the machine's initial state.
	Initial string `yaml:"initial,omitempty"`

	// Register limits which states are registered before the first step.
	// Default: every declared state. States left out can be registered
	// later with a register step.
	Register []string `yaml:"register,omitempty"`

	// Steps drive the machine in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID for deterministic traces.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// StateDecl is an inline scripted state.
type StateDecl struct {
	Name               string `yaml:"name"`
	scripted.StateSpec `yaml:",inline"`
}

// Step is one operation on the machine. Exactly one operation field must
// be set. Durations are Go duration strings ("16ms").
type Step struct {
	Register   string `yaml:"register,omitempty"`
	Start      bool   `yaml:"start,omitempty"`
	Push       string `yaml:"push,omitempty"`
	Pop        bool   `yaml:"pop,omitempty"`
	Change     string `yaml:"change,omitempty"`
	Tick       string `yaml:"tick,omitempty"`
	FixedTick  string `yaml:"fixed_tick,omitempty"`
	Drive      string `yaml:"drive,omitempty"`
	DriveFixed string `yaml:"drive_fixed,omitempty"`
	Pause      *bool  `yaml:"pause,omitempty"`

	// Repeat runs the operation this many times. Default 1.
	Repeat int `yaml:"repeat,omitempty"`

	// Expect is checked once, after the last repetition.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the machine after a step. Unset fields are not checked.
type Expect struct {
	// Current is the key on top of the stack. "" expects an empty stack.
	Current     *string `yaml:"current,omitempty"`
	Depth       *int    `yaml:"depth,omitempty"`
	TimeInState string  `yaml:"time_in_state,omitempty"`
	Paused      *bool   `yaml:"paused,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matching Event appears in the trace
	// - "trace_order": events matching Events appear in order
	// - "trace_count": an event matching Event appears exactly Count times
	// - "final_state": the final stack and flags match
	Type string `yaml:"type"`

	// Event is an event pattern "kind[:State][@cadence]", e.g.
	// "entered:Jump" or "ticked:Idle@fixed_tick".
	Event string `yaml:"event,omitempty"`

	// First narrows trace_contains and trace_count to first ticks (true)
	// or repeat ticks (false).
	First *bool `yaml:"first,omitempty"`

	// Events is the expected order (used by trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Stack is the expected final stack, bottom first (used by final_state).
	Stack []string `yaml:"stack,omitempty"`

	// Paused is the expected final paused flag (used by final_state).
	Paused *bool `yaml:"paused,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so "assertion:" is not silently ignored.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Machine == "" && len(s.States) == 0:
		return fmt.Errorf("either machine or states is required")
	case s.Machine != "" && len(s.States) > 0:
		return fmt.Errorf("machine and states are mutually exclusive")
	}

	seen := make(map[string]bool, len(s.States))
	for i, st := range s.States {
		if st.Name == "" {
			return fmt.Errorf("states[%d]: name is required", i)
		}
		if seen[st.Name] {
			return fmt.Errorf("states[%d]: duplicate state %q", i, st.Name)
		}
		seen[st.Name] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// op returns the name of the step's single operation, or an error when
// none or several are set.
func (s *Step) op() (string, error) {
	var ops []string
	if s.Register != "" {
		ops = append(ops, "register")
	}
	if s.Start {
		ops = append(ops, "start")
	}
	if s.Push != "" {
		ops = append(ops, "push")
	}
	if s.Pop {
		ops = append(ops, "pop")
	}
	if s.Change != "" {
		ops = append(ops, "change")
	}
	if s.Tick != "" {
		ops = append(ops, "tick")
	}
	if s.FixedTick != "" {
		ops = append(ops, "fixed_tick")
	}
	if s.Drive != "" {
		ops = append(ops, "drive")
	}
	if s.DriveFixed != "" {
		ops = append(ops, "drive_fixed")
	}
	if s.Pause != nil {
		ops = append(ops, "pause")
	}

	switch len(ops) {
	case 1:
		return ops[0], nil
	case 0:
		return "", fmt.Errorf("no operation set")
	default:
		return "", fmt.Errorf("exactly one operation allowed, got %v", ops)
	}
}

// delta returns the parsed duration of a tick or drive step.
func (s *Step) delta() (time.Duration, error) {
	for _, v := range []string{s.Tick, s.FixedTick, s.Drive, s.DriveFixed} {
		if v != "" {
			return time.ParseDuration(v)
		}
	}
	return 0, nil
}

func validateStep(index int, s *Step) error {
	if _, err := s.op(); err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}
	if s.Repeat < 0 {
		return fmt.Errorf("steps[%d]: repeat must be non-negative", index)
	}
	if _, err := s.delta(); err != nil {
		return fmt.Errorf("steps[%d]: %w", index, err)
	}
	if s.Expect != nil && s.Expect.TimeInState != "" {
		if _, err := time.ParseDuration(s.Expect.TimeInState); err != nil {
			return fmt.Errorf("steps[%d].expect.time_in_state: %w", index, err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", index, a.Type)
		}
		if _, err := parsePattern(a.Event); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Type == AssertTraceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
		for _, ev := range a.Events {
			if _, err := parsePattern(ev); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertFinalState:
		if a.Stack == nil && a.Paused == nil {
			return fmt.Errorf("assertions[%d]: stack or paused is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// parsePattern splits "kind[:State][@cadence]" and checks the kind and
// cadence names. Cadence aliases such as "fixed_update" are normalized.
func parsePattern(s string) (pattern, error) {
	var p pattern
	rest := s
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		c, err := fsm.ParseCadence(rest[i+1:])
		if err != nil {
			return pattern{}, fmt.Errorf("event %q: %w", s, err)
		}
		p.cadence, rest = c.String(), rest[:i]
	}
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		p.state, rest = rest[i+1:], rest[:i]
	}
	p.kind = rest

	switch p.kind {
	case "entered", "exited", "ticked", "paused", "resumed":
	default:
		return pattern{}, fmt.Errorf("event %q: unknown kind %q", s, p.kind)
	}
	return p, nil
}
