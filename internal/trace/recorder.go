// Package trace records machine lifecycle events as an ordered,
// content-addressed log.
//
// A Recorder is attached to a Machine as an fsm.Listener. Each event is
// stamped with the run ID and the next seq from a logical Clock, and
// buffered until Flush hands the batch to a Sink such as the SQLite store.
//
// Record identity is SHA-256 over RFC 8785 canonical JSON with a domain
// prefix, so a record written twice (a retried flush) is recognized as the
// same record.
package trace

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/fsmstack/internal/fsm"
)

// Sink persists a batch of records. Implementations must be idempotent on
// record ID so that a failed Flush can be retried.
type Sink interface {
	WriteEvents(ctx context.Context, records []Record) error
}

// Recorder buffers stamped lifecycle records for one run.
//
// OnEvent is called on the machine's goroutine; Records, Len and Flush may
// be called from any goroutine.
type Recorder struct {
	mu      sync.Mutex
	runID   string
	clock   *Clock
	records []Record
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock stamps records from c instead of a fresh clock.
func WithClock(c *Clock) RecorderOption {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// NewRecorder creates a Recorder for runID.
func NewRecorder(runID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		runID: runID,
		clock: NewClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns the run this recorder stamps.
func (r *Recorder) RunID() string {
	return r.runID
}

// Seq returns the last seq issued.
func (r *Recorder) Seq() int64 {
	return r.clock.Current()
}

// OnEvent implements fsm.Listener.
// Popped events are not recorded; the exit that precedes each one is.
func (r *Recorder) OnEvent(ev fsm.Event) {
	if ev.Kind == fsm.EventPopped {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, FromEvent(r.runID, r.clock.Next(), ev))
}

// Records returns a copy of the records not yet flushed, in seq order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// Len returns the number of records not yet flushed.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Flush writes the buffered records to sink and drops them on success.
// On error the records stay buffered for the next Flush.
func (r *Recorder) Flush(ctx context.Context, sink Sink) error {
	r.mu.Lock()
	batch := slices.Clone(r.records)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := sink.WriteEvents(ctx, batch); err != nil {
		return fmt.Errorf("flush %d records: %w", len(batch), err)
	}

	// Events recorded during the write stay buffered.
	r.mu.Lock()
	r.records = slices.Delete(r.records, 0, len(batch))
	r.mu.Unlock()

	return nil
}
