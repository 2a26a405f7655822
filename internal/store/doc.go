// Package store provides SQLite-backed storage for machine traces.
//
// The store is an append-only audit log with two tables:
//   - runs: one row per recorded run (machine, initial state, modes)
//   - events: lifecycle records stamped by trace.Recorder
//
// It records what a machine did. It is not a snapshot of machine state and
// cannot restore a stack.
//
// # Ordering and identity
//
// Events are ordered by the recorder's logical seq, never by wall time.
// Every query uses ORDER BY seq ASC, id COLLATE BINARY ASC so results are
// identical across reads. Event IDs are the content-addressed
// trace.Record IDs, and writes use ON CONFLICT DO NOTHING, so writing the
// same batch twice is harmless.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: events must reference an existing run
package store
