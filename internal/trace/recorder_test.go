package trace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/testutil"
)

type memorySink struct {
	batches [][]Record
	err     error
}

func (s *memorySink) WriteEvents(_ context.Context, records []Record) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, records)
	return nil
}

func recordedMachine(t *testing.T, rec *Recorder) *fsm.Machine {
	t.Helper()
	j := testutil.NewJournal()
	return fsm.New(
		fsm.WithName("door"),
		fsm.WithListener(rec),
		fsm.WithStates(testutil.NewSpyState("Closed", j), testutil.NewSpyState("Open", j)),
	)
}

func TestRecorder_StampsEvents(t *testing.T) {
	rec := NewRecorder("run-1")
	m := recordedMachine(t, rec)

	m.Push("Closed")
	m.OnTick(16 * time.Millisecond)
	m.Change("Open")
	m.Pause(true)

	records := rec.Records()
	require.Len(t, records, 5)

	labels := make([]string, len(records))
	for i, r := range records {
		labels[i] = r.Label()
		assert.Equal(t, "run-1", r.RunID)
		assert.Equal(t, "door", r.Machine)
		assert.Equal(t, int64(i+1), r.Seq)
	}
	assert.Equal(t, []string{
		"entered:Closed",
		"ticked:Closed@tick",
		"exited:Closed",
		"entered:Open",
		"paused",
	}, labels)

	tick := records[1]
	assert.True(t, tick.First)
	assert.Equal(t, 16*time.Millisecond, tick.Delta)
	assert.Equal(t, 16*time.Millisecond, tick.TimeInState)
	assert.Equal(t, int64(5), rec.Seq())
}

func TestRecorder_SkipsPopped(t *testing.T) {
	rec := NewRecorder("run-1")
	m := recordedMachine(t, rec)

	m.Push("Closed")
	m.Pop()

	records := rec.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "exited:Closed", records[1].Label())
	assert.Equal(t, int64(2), rec.Seq())
}

func TestRecorder_ResumesFromClock(t *testing.T) {
	rec := NewRecorder("run-1", WithClock(NewClockAt(41)))
	m := recordedMachine(t, rec)

	m.Push("Closed")

	require.Equal(t, 1, rec.Len())
	assert.Equal(t, int64(42), rec.Records()[0].Seq)
}

func TestRecorder_FlushDrainsOnSuccess(t *testing.T) {
	rec := NewRecorder("run-1")
	m := recordedMachine(t, rec)
	m.Push("Closed")
	m.Pop()

	sink := &memorySink{}
	require.NoError(t, rec.Flush(context.Background(), sink))
	require.NoError(t, rec.Flush(context.Background(), sink), "empty flush is a no-op")

	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0], 2)
	assert.Equal(t, 0, rec.Len())

	m.Push("Open")
	require.NoError(t, rec.Flush(context.Background(), sink))
	require.Len(t, sink.batches, 2)
	assert.Equal(t, int64(3), sink.batches[1][0].Seq, "seq continues across flushes")
}

func TestRecorder_FlushKeepsRecordsOnError(t *testing.T) {
	rec := NewRecorder("run-1")
	m := recordedMachine(t, rec)
	m.Push("Closed")

	boom := errors.New("disk full")
	err := rec.Flush(context.Background(), &memorySink{err: boom})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec.Len())
}

func TestRecord_IDIsContentAddressed(t *testing.T) {
	a := Record{RunID: "run-1", Seq: 1, Machine: "door", Kind: "entered", State: "Closed", Depth: 1}
	b := a

	assert.Equal(t, a.MustID(), b.MustID())
	assert.Len(t, a.MustID(), 64)

	b.Seq = 2
	assert.NotEqual(t, a.MustID(), b.MustID())

	c := a
	c.RunID = "run-2"
	assert.NotEqual(t, a.MustID(), c.MustID())
}

func TestDigest(t *testing.T) {
	a := Record{RunID: "run-1", Seq: 1, Kind: "entered", State: "A"}
	b := Record{RunID: "run-1", Seq: 2, Kind: "exited", State: "A"}

	d1, err := Digest([]Record{a, b})
	require.NoError(t, err)
	d2, err := Digest([]Record{a, b})
	require.NoError(t, err)
	d3, err := Digest([]Record{b, a})
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.NotEqual(t, d1, d3)
}

func TestRecord_Label(t *testing.T) {
	assert.Equal(t, "resumed", Record{Kind: "resumed"}.Label())
	assert.Equal(t, "entered:A", Record{Kind: "entered", State: "A"}.Label())
	assert.Equal(t, "ticked:A@fixed_tick", Record{Kind: "ticked", State: "A", Cadence: "fixed_tick"}.Label())
}

func TestFromEvent_NonTickDropsTickFields(t *testing.T) {
	r := FromEvent("run", 7, fsm.Event{
		Kind:    fsm.EventEntered,
		State:   "A",
		Cadence: fsm.CadenceTick,
		Delta:   time.Second,
	})

	assert.Empty(t, r.Cadence)
	assert.Zero(t, r.Delta)
	assert.Equal(t, int64(7), r.Seq)
}

func TestGenerators(t *testing.T) {
	gen := NewFixedGenerator("run-1", "run-2")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })

	var v7 UUIDv7Generator
	first, second := v7.Generate(), v7.Generate()
	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
