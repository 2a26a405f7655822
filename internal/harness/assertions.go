package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fsmstack/internal/trace"
)

// pattern matches trace records. Empty state or cadence match anything.
type pattern struct {
	kind    string
	state   string
	cadence string
}

func (p pattern) match(r trace.Record, first *bool) bool {
	if r.Kind != p.kind {
		return false
	}
	if p.state != "" && r.State != p.state {
		return false
	}
	if p.cadence != "" && r.Cadence != p.cadence {
		return false
	}
	if first != nil && (r.Kind != "ticked" || r.First != *first) {
		return false
	}
	return true
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Trace    []trace.Record // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, r := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s depth=%d\n", r.Seq, r.Label(), r.Depth)
		}
	}

	return buf.String()
}

// assertTraceContains checks that at least one record matches the event
// pattern.
func assertTraceContains(records []trace.Record, assertion Assertion) error {
	p, err := parsePattern(assertion.Event)
	if err != nil {
		return err
	}
	for _, r := range records {
		if p.match(r, assertion.First) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s%s", assertion.Event, firstSuffix(assertion.First)),
		Actual:   "not found in trace",
		Trace:    records,
	}
}

// assertTraceOrder checks that the patterns match records in order.
// Records in between are allowed, and each pattern consumes the earliest
// match after the previous one.
func assertTraceOrder(records []trace.Record, assertion Assertion) error {
	pos := 0
	for i, ev := range assertion.Events {
		p, err := parsePattern(ev)
		if err != nil {
			return err
		}

		found := slices.IndexFunc(records[pos:], func(r trace.Record) bool {
			return p.match(r, nil)
		})
		if found < 0 {
			actual := fmt.Sprintf("missing event: %s", ev)
			if i > 0 {
				actual = fmt.Sprintf("no %s after %s (seq %d)", ev, assertion.Events[i-1], records[pos-1].Seq)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual:   actual,
				Trace:    records,
			}
		}
		pos += found + 1
	}
	return nil
}

// assertTraceCount checks that exactly Count records match the pattern.
func assertTraceCount(records []trace.Record, assertion Assertion) error {
	p, err := parsePattern(assertion.Event)
	if err != nil {
		return err
	}

	count := 0
	for _, r := range records {
		if p.match(r, assertion.First) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s%s", assertion.Count, assertion.Event, firstSuffix(assertion.First)),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    records,
		}
	}
	return nil
}

// assertFinalState compares the final stack and paused flag. An empty
// stack list expects an empty stack; an omitted one is not checked.
func assertFinalState(final FinalState, assertion Assertion) error {
	if assertion.Stack != nil && !slices.Equal(final.Stack, assertion.Stack) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("stack %v", assertion.Stack),
			Actual:   fmt.Sprintf("stack %v", final.Stack),
		}
	}
	if assertion.Paused != nil && final.Paused != *assertion.Paused {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("paused %t", *assertion.Paused),
			Actual:   fmt.Sprintf("paused %t", final.Paused),
		}
	}
	return nil
}

func firstSuffix(first *bool) string {
	switch {
	case first == nil:
		return ""
	case *first:
		return " (first)"
	default:
		return " (repeat)"
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Final, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
