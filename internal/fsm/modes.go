package fsm

import (
	"fmt"
	"strings"
)

// Cadence names one of the two independent dispatch rates.
type Cadence uint8

const (
	// CadenceTick is the variable-rate cadence (once per frame).
	CadenceTick Cadence = iota + 1
	// CadenceFixedTick is the fixed-rate cadence (once per simulation step).
	CadenceFixedTick
)

// String returns "tick" or "fixed_tick".
func (c Cadence) String() string {
	switch c {
	case CadenceTick:
		return "tick"
	case CadenceFixedTick:
		return "fixed_tick"
	default:
		return fmt.Sprintf("cadence(%d)", uint8(c))
	}
}

// phase returns the phase bit that tracks the first call for c.
func (c Cadence) phase() Phase {
	if c == CadenceFixedTick {
		return PhaseFixedUpdated
	}
	return PhaseUpdated
}

// ParseCadence parses "tick" or "fixed_tick".
func ParseCadence(s string) (Cadence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tick", "update":
		return CadenceTick, nil
	case "fixed_tick", "fixed_update", "fixed":
		return CadenceFixedTick, nil
	default:
		return 0, fmt.Errorf("unknown cadence %q", s)
	}
}

// ExecutionModes selects which cadences a driver should schedule.
// ModeNone means the host dispatches manually.
type ExecutionModes uint8

const (
	// ModeNone leaves dispatch to the host.
	ModeNone ExecutionModes = 0
	// ModeUpdate enables the variable-rate cadence.
	ModeUpdate ExecutionModes = 1 << 0
	// ModeFixedUpdate enables the fixed-rate cadence.
	ModeFixedUpdate ExecutionModes = 1 << 1
)

// Has reports whether every mode in flag is enabled.
func (m ExecutionModes) Has(flag ExecutionModes) bool {
	return m&flag == flag && flag != ModeNone
}

// Cadences lists the enabled cadences in dispatch order.
func (m ExecutionModes) Cadences() []Cadence {
	var out []Cadence
	if m.Has(ModeUpdate) {
		out = append(out, CadenceTick)
	}
	if m.Has(ModeFixedUpdate) {
		out = append(out, CadenceFixedTick)
	}
	return out
}

// String renders the modes as a "|" separated list, or "manual".
func (m ExecutionModes) String() string {
	if m == ModeNone {
		return "manual"
	}
	var parts []string
	if m.Has(ModeUpdate) {
		parts = append(parts, "update")
	}
	if m.Has(ModeFixedUpdate) {
		parts = append(parts, "fixed_update")
	}
	return strings.Join(parts, "|")
}

// ParseModes combines textual mode names into ExecutionModes.
// Accepted names: "update", "fixed_update", "manual". An empty list is
// ModeNone.
func ParseModes(names []string) (ExecutionModes, error) {
	var modes ExecutionModes
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "update":
			modes |= ModeUpdate
		case "fixed_update":
			modes |= ModeFixedUpdate
		case "manual", "none":
		default:
			return ModeNone, fmt.Errorf("unknown execution mode %q", name)
		}
	}
	return modes, nil
}
