package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/fsmstack/internal/trace"
)

// Run describes one recorded execution of a machine.
type Run struct {
	ID         string
	Machine    string
	Initial    string
	Modes      string
	ConfigHash string
	StartedAt  time.Time

	// Events is filled by reads with the number of stored events.
	Events int
}

// WriteRun inserts a run. A run with the same ID is left unchanged.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, machine, initial_state, modes, config_hash, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Machine,
		run.Initial,
		run.Modes,
		run.ConfigHash,
		run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvents inserts records in a single transaction. It implements
// trace.Sink.
//
// Records already stored, by ID or by (run_id, seq), are silently skipped.
// The run each record references must exist.
func (s *Store) WriteEvents(ctx context.Context, records []trace.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(id, run_id, seq, machine, kind, state, cadence, first, delta_ns, time_in_state_ns, depth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		id, err := r.ID()
		if err != nil {
			return fmt.Errorf("write events: seq %d: %w", r.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			id,
			r.RunID,
			r.Seq,
			r.Machine,
			r.Kind,
			r.State,
			r.Cadence,
			r.First,
			int64(r.Delta),
			int64(r.TimeInState),
			r.Depth,
		); err != nil {
			return fmt.Errorf("write events: seq %d: %w", r.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

var _ trace.Sink = (*Store)(nil)
