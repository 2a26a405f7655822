package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fsmstack CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fsmstack",
		Short: "Stack-based state machines driven by tick loops",
		Long: `fsmstack runs stack-based finite state machines defined in CUE.

Machines are validated and run from a config directory, traced to
SQLite, and checked against YAML conformance scenarios.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}
