package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationError is one problem found in a config directory.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Machines []string          `json:"machines,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-dir>",
		Short: "Validate machine definitions",
		Long: `Validate the CUE machine definitions in a directory.

Every machine is compiled, including a check that each state action
targets a declared state. All errors are reported, not just the first.
A machine with no resolvable initial state is valid but draws a warning,
since it starts with an empty stack.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadMachines(configDir, LoadModeCollectAll)

	// Directory not found, no files, CUE build failure.
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, configDir)

	names := make([]string, 0, len(loadResult.Machines))
	var warnings []string
	for _, m := range loadResult.Machines {
		formatter.VerboseLog("Validated machine: %s (%d states)", m.Name, len(m.States))
		names = append(names, m.Name)
		for _, w := range m.Warnings() {
			warnings = append(warnings, m.Name+": "+w)
		}
	}

	var validationErrors []ValidationError
	for _, err := range loadErrors {
		validationErrors = append(validationErrors, toValidationError(err))
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, names, warnings)
}

func toValidationError(err error) ValidationError {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		return ValidationError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
	if loadErr.Pos.IsValid() {
		ve.File = loadErr.Pos.Filename()
		ve.Line = loadErr.Pos.Line()
	}
	return ve
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, machines, warnings []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Machines: machines, Warnings: warnings})
	}

	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "⚠ %s\n", w)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d machine(s) valid\n", len(machines))
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := formatter.Indented(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
