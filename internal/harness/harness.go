package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/fsmstack/internal/catalog"
	"github.com/roach88/fsmstack/internal/config"
	"github.com/roach88/fsmstack/internal/driver"
	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/scripted"
	"github.com/roach88/fsmstack/internal/store"
	"github.com/roach88/fsmstack/internal/testutil"
	"github.com/roach88/fsmstack/internal/trace"
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	machines []*config.MachineSpec
	logger   *slog.Logger
}

// WithMachines makes compiled machine definitions available to scenarios
// that name a machine.
func WithMachines(specs []*config.MachineSpec) Option {
	return func(o *options) {
		o.machines = specs
	}
}

// WithLogger routes machine diagnostics to logger. Default: discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Harness is the test execution engine.
// It runs one scenario against a real Machine with a logical clock and a
// fixed run ID.
type Harness struct {
	store    *store.Store
	catalog  *catalog.Catalog
	machine  *fsm.Machine
	recorder *trace.Recorder
	tick     *driver.Driver
	fixed    *driver.Driver
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build the catalog and the machine, with a Recorder attached
// 3. Execute steps, checking per-step expectations
// 4. Flush the trace to the store and read it back
// 5. Evaluate assertions and return the result
//
// Run returns an error only when the scenario cannot execute at all.
// Failed expectations and assertions are reported in the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	runID := testutil.NewFixedRunIDGenerator(scenario.RunID).Generate()

	h := &Harness{
		store:    st,
		recorder: trace.NewRecorder(runID),
		logger:   o.logger,
	}

	if err := h.build(scenario, o); err != nil {
		return nil, err
	}

	ctx := context.Background()
	configHash := ""
	if scenario.Machine != "" {
		if spec := findMachine(o.machines, scenario.Machine); spec != nil {
			if configHash, err = config.Hash(spec); err != nil {
				return nil, err
			}
		}
	}
	err = st.WriteRun(ctx, store.Run{
		ID:         runID,
		Machine:    h.machine.Name(),
		Initial:    string(h.machine.Initial()),
		Modes:      h.machine.Modes().String(),
		ConfigHash: configHash,
		// Fixed start time keeps the stored run reproducible.
		StartedAt: time.Unix(0, 0).UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write run: %w", err)
	}

	result := NewResult(runID)
	if err := h.executeSteps(scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	if err := h.recorder.Flush(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to flush trace: %w", err)
	}
	result.Trace, err = st.ReadEvents(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	result.Final = FinalState{
		Stack:       stackNames(h.machine),
		Paused:      h.machine.IsPaused(),
		TimeInState: h.machine.TimeInState(),
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// build creates the catalog and the machine for s.
func (h *Harness) build(s *Scenario, o *options) error {
	var (
		name    = s.Name
		initial = fsm.Key(s.Initial)
		modes   = fsm.ModeUpdate
	)

	if s.Machine != "" {
		spec := findMachine(o.machines, s.Machine)
		if spec == nil {
			return fmt.Errorf("machine %q not found", s.Machine)
		}
		c, err := config.Catalog(spec, h.logger)
		if err != nil {
			return err
		}
		h.catalog = c
		name, modes = spec.Name, spec.Modes
		if initial == "" {
			initial = spec.Initial
		}
	} else {
		h.catalog = catalog.New()
		for _, decl := range s.States {
			st, err := scripted.Compile(decl.Name, decl.StateSpec)
			if err != nil {
				return err
			}
			if err := h.catalog.Register(decl.Name, st.Factory(scripted.WithLogger(h.logger))); err != nil {
				return err
			}
		}
	}

	h.machine = fsm.New(
		fsm.WithName(name),
		fsm.WithLogger(h.logger),
		fsm.WithModes(modes),
		fsm.WithInitial(initial),
		fsm.WithListener(h.recorder),
	)
	h.tick = driver.New(h.machine, fsm.CadenceTick)
	h.fixed = driver.New(h.machine, fsm.CadenceFixedTick)

	register := s.Register
	if register == nil {
		states, err := h.catalog.Build()
		if err != nil {
			return err
		}
		h.machine.RegisterAll(states...)
		return nil
	}
	for _, n := range register {
		if err := h.registerState(n); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) registerState(name string) error {
	st, err := h.catalog.Instance(name)
	if err != nil {
		return err
	}
	h.machine.Register(st)
	return nil
}

// executeSteps runs all steps in order and records failed expectations.
func (h *Harness) executeSteps(steps []Step, result *Result) error {
	for i := range steps {
		step := &steps[i]
		op, err := step.op()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		delta, err := step.delta()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		repeat := max(step.Repeat, 1)
		for range repeat {
			if err := h.apply(op, step, delta); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}

		h.logger.Debug("step completed",
			"step", i,
			"op", op,
			"repeat", repeat,
			"depth", h.machine.Depth(),
		)

		if step.Expect != nil {
			for _, msg := range h.checkExpect(step.Expect) {
				result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, op, msg))
			}
		}
	}
	return nil
}

func (h *Harness) apply(op string, s *Step, delta time.Duration) error {
	m := h.machine
	switch op {
	case "register":
		return h.registerState(s.Register)
	case "start":
		m.Start()
	case "push":
		m.Push(fsm.Key(s.Push))
	case "pop":
		m.Pop()
	case "change":
		m.Change(fsm.Key(s.Change))
	case "tick":
		m.OnTick(delta)
	case "fixed_tick":
		m.OnFixedTick(delta)
	case "drive":
		h.tick.Step(delta)
	case "drive_fixed":
		h.fixed.Step(delta)
	case "pause":
		m.Pause(*s.Pause)
	}
	return nil
}

// checkExpect compares the machine against e and returns one message per
// mismatch.
func (h *Harness) checkExpect(e *Expect) []string {
	m := h.machine
	var msgs []string

	if e.Current != nil {
		current := ""
		if s, ok := m.TryCurrent(); ok {
			current = string(fsm.KeyOf(s))
		}
		if current != *e.Current {
			msgs = append(msgs, fmt.Sprintf("expected current %q, got %q", *e.Current, current))
		}
	}
	if e.Depth != nil && m.Depth() != *e.Depth {
		msgs = append(msgs, fmt.Sprintf("expected depth %d, got %d", *e.Depth, m.Depth()))
	}
	if e.TimeInState != "" {
		want, _ := time.ParseDuration(e.TimeInState)
		if got := m.TimeInState(); got != want {
			msgs = append(msgs, fmt.Sprintf("expected time_in_state %s, got %s", want, got))
		}
	}
	if e.Paused != nil && m.IsPaused() != *e.Paused {
		msgs = append(msgs, fmt.Sprintf("expected paused %t, got %t", *e.Paused, m.IsPaused()))
	}
	return msgs
}

func findMachine(specs []*config.MachineSpec, name string) *config.MachineSpec {
	for _, spec := range specs {
		if spec.Name == name {
			return spec
		}
	}
	return nil
}

func stackNames(m *fsm.Machine) []string {
	refs := m.Stack()
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = string(ref.Key())
	}
	return names
}
