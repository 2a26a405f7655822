package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/fsmstack/internal/trace"
)

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `
	r.id, r.machine, r.initial_state, r.modes, r.config_hash, r.started_at,
	(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)
`

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, id)
	return scanRun(row)
}

// ListRuns returns every run ordered by ID. UUIDv7 run IDs sort by start
// time, so this lists oldest first.
//
// Returns an empty slice (not nil) if the store has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs r ORDER BY r.id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ReadEvents returns the records of a run in seq order.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]trace.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, machine, kind, state, cadence, first, delta_ns, time_in_state_ns, depth
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []trace.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return records, nil
}

// LastSeq returns the highest seq stored for a run, or 0 when it has none.
// A recorder appending to the run continues from here with
// trace.NewClockAt.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE run_id = ?`, runID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		startedAt int64
	)
	if err := row.Scan(
		&run.ID,
		&run.Machine,
		&run.Initial,
		&run.Modes,
		&run.ConfigHash,
		&startedAt,
		&run.Events,
	); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	return run, nil
}

func scanRecord(row rowScanner) (trace.Record, error) {
	var (
		r           trace.Record
		delta       int64
		timeInState int64
	)
	if err := row.Scan(
		&r.RunID,
		&r.Seq,
		&r.Machine,
		&r.Kind,
		&r.State,
		&r.Cadence,
		&r.First,
		&delta,
		&timeInState,
		&r.Depth,
	); err != nil {
		return trace.Record{}, fmt.Errorf("scan event: %w", err)
	}
	r.Delta = time.Duration(delta)
	r.TimeInState = time.Duration(timeInState)
	return r, nil
}
