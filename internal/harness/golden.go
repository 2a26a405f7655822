package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fsmstack/internal/trace"
)

// Snapshot renders a scenario's trace as canonical JSON for golden
// comparison. The run ID appears once at the top level; record IDs are
// left out since they hash the run ID and add nothing to a diff.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	records := make([]any, len(result.Trace))
	for i, r := range result.Trace {
		m := r.Canonical()
		delete(m, "run_id")
		records[i] = m
	}

	return trace.MarshalCanonical(map[string]any{
		"scenario_name": scenario.Name,
		"run_id":        result.RunID,
		"trace":         records,
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// opts are applied after the defaults, so a test may point the fixture
// directory elsewhere. Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	data, err := Snapshot(scenario, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, scenario.Name, data)

	return result, nil
}
