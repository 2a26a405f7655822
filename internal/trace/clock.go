package trace

import "sync/atomic"

// Clock is a monotonic logical clock for ordering records.
//
// Every record is stamped with a strictly increasing seq from this clock,
// so record order never depends on wall time and two runs with the same
// inputs produce the same sequence.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock positioned at start, for appending to an
// existing run.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued seq without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
