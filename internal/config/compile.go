// Package config compiles CUE machine definitions.
//
// A definition lives under the top-level "machine" struct:
//
//	machine: player: {
//	    initial: "Idle"
//	    modes: ["update", "fixed_update"]
//	    tick_rate: "16ms"
//	    fixed_rate: "20ms"
//	    states: {
//	        Idle: rules: [{after: "500ms", do: change: "Run"}]
//	        Run:  {on_enter: [{push: "Jump"}]}
//	        Jump: rules: [{ticks: 3, cadence: "fixed_tick", do: pop: true}]
//	    }
//	}
//
// Every state is a scripted state. CompileMachine validates the whole
// definition, including that every action targets a declared state, before
// Build turns it into a Machine. initial is optional: a machine without one,
// or whose initial names no declared state, starts with an empty stack and
// reports the fact through Warnings.
package config

import (
	"errors"
	"fmt"
	"time"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fsmstack/internal/driver"
	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/scripted"
)

// MachineSpec is a compiled machine definition.
type MachineSpec struct {
	Name      string
	Initial   fsm.Key
	Modes     fsm.ExecutionModes
	TickRate  time.Duration
	FixedRate time.Duration

	// States in declaration order.
	States []scripted.Spec
}

// Warnings reports non-fatal problems with the definition.
func (s *MachineSpec) Warnings() []string {
	if s.Initial == "" {
		return []string{"no initial state; the stack starts empty"}
	}
	if _, ok := s.State(s.Initial); !ok {
		return []string{fmt.Sprintf("initial state %q is not declared; the stack starts empty", s.Initial)}
	}
	return nil
}

// State returns the state named key.
func (s *MachineSpec) State(key fsm.Key) (scripted.Spec, bool) {
	for _, st := range s.States {
		if fsm.Key(st.Name) == key {
			return st, true
		}
	}
	return scripted.Spec{}, false
}

// CompileError reports an invalid field with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileAll compiles every machine under the top-level "machine" struct
// and collects all errors. A missing "machine" struct yields no specs and
// no errors.
func CompileAll(v cue.Value) ([]*MachineSpec, []error) {
	machines := v.LookupPath(cue.ParsePath("machine"))
	if !machines.Exists() {
		return nil, nil
	}

	iter, err := machines.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		specs []*MachineSpec
		errs  []error
	)
	for iter.Next() {
		spec, err := CompileMachine(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

// CompileMachine parses one machine struct. The machine is named after
// the struct's label, e.g. "player" for machine.player.
func CompileMachine(v cue.Value) (*MachineSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &MachineSpec{
		Modes:     fsm.ModeUpdate,
		TickRate:  driver.DefaultTickRate,
		FixedRate: driver.DefaultFixedRate,
	}

	if labels := v.Path().Selectors(); len(labels) > 0 {
		spec.Name = labelName(labels[len(labels)-1])
	}

	var err error
	if initialVal := v.LookupPath(cue.ParsePath("initial")); initialVal.Exists() {
		initial, err := initialVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Initial = fsm.Key(initial)
	}

	if spec.Modes, err = parseModes(v); err != nil {
		return nil, err
	}
	if spec.TickRate, err = parseRate(v, "tick_rate", spec.TickRate); err != nil {
		return nil, err
	}
	if spec.FixedRate, err = parseRate(v, "fixed_rate", spec.FixedRate); err != nil {
		return nil, err
	}

	if spec.States, err = parseStates(v); err != nil {
		return nil, err
	}
	if len(spec.States) == 0 {
		return nil, &CompileError{Field: "states", Message: "at least one state is required", Pos: v.Pos()}
	}

	if err := validateReferences(v, spec); err != nil {
		return nil, err
	}

	return spec, nil
}

// labelName strips the quotes CUE keeps on labels such as "my-machine".
func labelName(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

func parseModes(v cue.Value) (fsm.ExecutionModes, error) {
	modesVal := v.LookupPath(cue.ParsePath("modes"))
	if !modesVal.Exists() {
		return fsm.ModeUpdate, nil
	}

	var names []string
	if err := modesVal.Decode(&names); err != nil {
		return 0, formatCUEError(err)
	}
	modes, err := fsm.ParseModes(names)
	if err != nil {
		return 0, &CompileError{Field: "modes", Message: err.Error(), Pos: modesVal.Pos()}
	}
	return modes, nil
}

func parseRate(v cue.Value, field string, def time.Duration) (time.Duration, error) {
	rateVal := v.LookupPath(cue.ParsePath(field))
	if !rateVal.Exists() {
		return def, nil
	}

	s, err := rateVal.String()
	if err != nil {
		return 0, formatCUEError(err)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{Field: field, Message: err.Error(), Pos: rateVal.Pos()}
	}
	if d <= 0 {
		return 0, &CompileError{Field: field, Message: "must be positive", Pos: rateVal.Pos()}
	}
	return d, nil
}

func parseStates(v cue.Value) ([]scripted.Spec, error) {
	statesVal := v.LookupPath(cue.ParsePath("states"))
	if !statesVal.Exists() {
		return nil, nil
	}

	iter, err := statesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var states []scripted.Spec
	for iter.Next() {
		name := iter.Label()
		stateVal := iter.Value()

		var ss scripted.StateSpec
		if err := stateVal.Decode(&ss); err != nil {
			return nil, formatCUEError(err)
		}

		st, err := scripted.Compile(name, ss)
		if err != nil {
			var verr *scripted.ValidationError
			if errors.As(err, &verr) {
				return nil, &CompileError{
					Field:   "states." + name + "." + verr.Field,
					Message: verr.Message,
					Pos:     stateVal.Pos(),
				}
			}
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// validateReferences checks that every action target names a declared
// state. An undeclared initial is left to Warnings.
func validateReferences(v cue.Value, spec *MachineSpec) error {
	for _, st := range spec.States {
		for _, target := range st.Targets() {
			if _, ok := spec.State(target); !ok {
				return &CompileError{
					Field:   "states." + st.Name,
					Message: fmt.Sprintf("action targets undeclared state %q", target),
					Pos:     v.LookupPath(cue.MakePath(cue.Str("states"), cue.Str(st.Name))).Pos(),
				}
			}
		}
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
