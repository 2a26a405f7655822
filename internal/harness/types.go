package harness

import (
	"time"

	"github.com/roach88/fsmstack/internal/trace"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion holds.
	Pass bool `json:"pass"`

	// RunID identifies the recorded run.
	RunID string `json:"run_id"`

	// Trace contains every lifecycle record in seq order, as read back
	// from the store.
	Trace []trace.Record `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the machine as it was after the last step.
	Final FinalState `json:"final"`
}

// FinalState is a snapshot of the machine after the last step.
type FinalState struct {
	Stack       []string      `json:"stack"`
	Paused      bool          `json:"paused"`
	TimeInState time.Duration `json:"time_in_state_ns"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Trace:  []trace.Record{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
