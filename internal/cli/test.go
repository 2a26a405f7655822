package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fsmstack/internal/config"
	"github.com/roach88/fsmstack/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <config-dir> <scenarios-dir>",
		Short: "Run scenario harness",
		Long: `Run YAML scenarios against the machines in a config directory.

Each scenario drives a machine step by step with explicit deltas, then
checks its assertions against the recorded trace and final stack. When
<scenarios-dir>/golden/<name>.golden exists the trace must also match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  fsmstack test ./machines ./scenarios
  fsmstack test ./machines ./scenarios --filter "jump*"
  fsmstack test ./machines ./scenarios --update
  fsmstack test ./machines ./scenarios --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, configDir, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	loadResult, loadErrors := LoadMachines(configDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return WrapExitError(ExitCommandError, "failed to load machines", loadErrors[0])
	}

	// Find scenario files
	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return fmt.Errorf("failed to find scenarios: %w", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{
				Scenarios: []ScenarioResult{},
				Total:     0,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	// Run scenarios
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, loadResult.Machines, opts, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	// Output results
	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}

	return outputTestText(cmd, result)
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		// Only process .yaml and .yml files
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		// Apply filter if specified
		if filter != "" {
			base := filepath.Base(path)
			name := strings.TrimSuffix(base, ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(scenarioFile string, machines []*config.MachineSpec, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	res := evalScenario(scenarioFile, machines, opts)
	if opts.Format == "json" {
		return res
	}

	w := cmd.OutOrStdout()
	switch {
	case res.Pass && opts.Update:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", res.Name)
	case res.Pass:
		fmt.Fprintf(w, "✓ %s\n", res.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", res.Name)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return res
}

func evalScenario(scenarioFile string, machines []*config.MachineSpec, opts *TestOptions) ScenarioResult {
	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(scenarioFile),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(scenario, harness.WithMachines(machines))
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	snapshot, err := harness.Snapshot(scenario, result)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("failed to snapshot trace: %v", err)},
		}
	}

	goldenPath := goldenFilePath(scenarioFile)
	if opts.Update {
		if err := writeGoldenFile(goldenPath, snapshot); err != nil {
			return ScenarioResult{
				Name:   scenario.Name,
				Errors: []string{fmt.Sprintf("failed to update golden file: %v", err)},
			}
		}
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	errs := result.Errors
	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file: assertions only.
	case err != nil:
		errs = append(errs, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(golden, snapshot):
		errs = append(errs, "trace does not match golden file (run with --update to regenerate)")
	}

	return ScenarioResult{
		Name:   scenario.Name,
		Pass:   len(errs) == 0,
		Errors: errs,
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// writeGoldenFile writes a trace snapshot, creating the golden directory.
func writeGoldenFile(goldenPath string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, snapshot, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    ErrCodeScenarioFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	formatter := &OutputFormatter{Writer: cmd.OutOrStdout()}
	if err := formatter.Indented(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
