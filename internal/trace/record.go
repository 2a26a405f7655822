package trace

import (
	"time"

	"github.com/roach88/fsmstack/internal/fsm"
)

// Record is one lifecycle event stamped for a run.
//
// Durations are kept as time.Duration in memory and serialized as integer
// nanoseconds, since canonical JSON carries no floats.
type Record struct {
	RunID       string        `json:"run_id"`
	Seq         int64         `json:"seq"`
	Machine     string        `json:"machine"`
	Kind        string        `json:"kind"`
	State       string        `json:"state,omitempty"`
	Cadence     string        `json:"cadence,omitempty"`
	First       bool          `json:"first,omitempty"`
	Delta       time.Duration `json:"delta_ns"`
	TimeInState time.Duration `json:"time_in_state_ns"`
	Depth       int           `json:"depth"`
}

// FromEvent converts ev into a Record for runID at seq.
func FromEvent(runID string, seq int64, ev fsm.Event) Record {
	r := Record{
		RunID:       runID,
		Seq:         seq,
		Machine:     ev.Machine,
		Kind:        ev.Kind.String(),
		State:       string(ev.State),
		TimeInState: ev.TimeInState,
		Depth:       ev.Depth,
	}
	if ev.Kind == fsm.EventTicked {
		r.Cadence = ev.Cadence.String()
		r.First = ev.First
		r.Delta = ev.Delta
	}
	return r
}

// Canonical returns the record as a canonical JSON value. Every field is
// present so the encoding, and therefore the ID, has a fixed shape.
func (r Record) Canonical() map[string]any {
	return map[string]any{
		"run_id":           r.RunID,
		"seq":              r.Seq,
		"machine":          r.Machine,
		"kind":             r.Kind,
		"state":            r.State,
		"cadence":          r.Cadence,
		"first":            r.First,
		"delta_ns":         int64(r.Delta),
		"time_in_state_ns": int64(r.TimeInState),
		"depth":            r.Depth,
	}
}

// Label renders the record for assertions and text output:
// "kind", "kind:State" or "kind:State@cadence".
func (r Record) Label() string {
	label := r.Kind
	if r.State != "" {
		label += ":" + r.State
	}
	if r.Cadence != "" {
		label += "@" + r.Cadence
	}
	return label
}
