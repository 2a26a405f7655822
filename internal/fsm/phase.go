package fsm

import "strings"

// Phase is the lifecycle marker of a single stack entry.
//
// Phases advance monotonically:
//
//	None → Entered → {Updated, FixedUpdated} → Exited
//
// Updated and FixedUpdated are independent bits, one per cadence.
// Exited replaces every other bit.
type Phase uint8

const (
	// PhaseNone marks an entry that has been stacked but not entered.
	PhaseNone Phase = 0
	// PhaseEntered is set once Enter has been dispatched.
	PhaseEntered Phase = 1 << 0
	// PhaseUpdated is set on the first variable-rate tick.
	PhaseUpdated Phase = 1 << 1
	// PhaseFixedUpdated is set on the first fixed-rate tick.
	PhaseFixedUpdated Phase = 1 << 2
	// PhaseExited is set once Exit has been dispatched.
	PhaseExited Phase = 1 << 3
)

// Has reports whether every bit of flag is set on p.
// Has(PhaseNone) is always true; use IsNone to test for the empty phase.
func (p Phase) Has(flag Phase) bool {
	return p&flag == flag
}

// IsNone reports whether no lifecycle bit has been set.
func (p Phase) IsNone() bool {
	return p == PhaseNone
}

// With returns p with flag added.
func (p Phase) With(flag Phase) Phase {
	return p | flag
}

// String renders the set bits joined by "|", e.g. "entered|updated".
func (p Phase) String() string {
	if p == PhaseNone {
		return "none"
	}

	var parts []string
	if p.Has(PhaseEntered) {
		parts = append(parts, "entered")
	}
	if p.Has(PhaseUpdated) {
		parts = append(parts, "updated")
	}
	if p.Has(PhaseFixedUpdated) {
		parts = append(parts, "fixed_updated")
	}
	if p.Has(PhaseExited) {
		parts = append(parts, "exited")
	}
	return strings.Join(parts, "|")
}
