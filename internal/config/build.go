package config

import (
	"fmt"
	"log/slog"

	"github.com/roach88/fsmstack/internal/catalog"
	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/scripted"
	"github.com/roach88/fsmstack/internal/trace"
)

// DomainConfig separates machine definition hashes from trace hashes.
const DomainConfig = "fsmstack/config/v1"

// Catalog registers a scripted factory for every state of spec.
func Catalog(spec *MachineSpec, logger *slog.Logger) (*catalog.Catalog, error) {
	c := catalog.New()
	for _, st := range spec.States {
		if err := c.Register(st.Name, st.Factory(scripted.WithLogger(logger))); err != nil {
			return nil, fmt.Errorf("machine %s: %w", spec.Name, err)
		}
	}
	return c, nil
}

// Build creates a Machine for spec with fresh state instances. opts are
// applied after the definition's name, modes and initial state, so callers can
// add listeners or override the logger.
func Build(spec *MachineSpec, logger *slog.Logger, opts ...fsm.Option) (*fsm.Machine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c, err := Catalog(spec, logger)
	if err != nil {
		return nil, err
	}

	base := []fsm.Option{
		fsm.WithName(spec.Name),
		fsm.WithLogger(logger),
		fsm.WithModes(spec.Modes),
		fsm.WithInitial(spec.Initial),
	}
	return c.NewMachine(append(base, opts...)...)
}

// Hash returns a content hash of spec, stored with each run so a trace can
// be matched to the definition that produced it.
func Hash(spec *MachineSpec) (string, error) {
	states := make([]any, 0, len(spec.States))
	for _, st := range spec.States {
		rules := make([]any, 0, len(st.Rules))
		for _, r := range st.Rules {
			cadence := ""
			if r.Cadence != 0 {
				cadence = r.Cadence.String()
			}
			rules = append(rules, map[string]any{
				"after_ns": int64(r.After),
				"ticks":    r.Ticks,
				"cadence":  cadence,
				"do":       r.Do.String(),
			})
		}
		states = append(states, map[string]any{
			"name":     st.Name,
			"on_enter": actionStrings(st.OnEnter),
			"on_exit":  actionStrings(st.OnExit),
			"rules":    rules,
		})
	}

	return trace.Hash(DomainConfig, map[string]any{
		"name":          spec.Name,
		"initial":       string(spec.Initial),
		"modes":         spec.Modes.String(),
		"tick_rate_ns":  int64(spec.TickRate),
		"fixed_rate_ns": int64(spec.FixedRate),
		"states":        states,
	})
}

func actionStrings(actions []scripted.Action) []any {
	out := make([]any, len(actions))
	for i, a := range actions {
		out[i] = a.String()
	}
	return out
}
