package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fsmstack/internal/store"
	"github.com/roach88/fsmstack/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string
	State    string // optional - filter to a single state
}

// RunEntry is one row of the run listing.
type RunEntry struct {
	ID        string    `json:"id"`
	Machine   string    `json:"machine"`
	Modes     string    `json:"modes"`
	Events    int       `json:"events"`
	StartedAt time.Time `json:"started_at"`
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq         int64  `json:"seq"`
	Label       string `json:"label"`
	Depth       int    `json:"depth"`
	DeltaNS     int64  `json:"delta_ns,omitempty"`
	TimeInState int64  `json:"time_in_state_ns"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID      string       `json:"run_id"`
	Machine    string       `json:"machine"`
	Modes      string       `json:"modes"`
	ConfigHash string       `json:"config_hash"`
	Digest     string       `json:"digest"`
	Timeline   []TraceEvent `json:"timeline"`
	Stats      TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Entered     int `json:"entered"`
	Exited      int `json:"exited"`
	Ticks       int `json:"ticks"`
	FixedTicks  int `json:"fixed_ticks"`
	Pauses      int `json:"pauses"`
	MaxDepth    int `json:"max_depth"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs",
		Long: `Inspect the runs recorded in a database.

Without --run, lists every recorded run. With --run, prints the run's
lifecycle timeline, summary statistics and trace digest. Two runs with
the same digest produced identical traces.

Examples:
  fsmstack trace --db ./runs.db
  fsmstack trace --db ./runs.db --run 0190f5c2-...
  fsmstack trace --db ./runs.db --run 0190f5c2-... --state Jump
  fsmstack trace --db ./runs.db --run 0190f5c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show (lists runs when empty)")
	cmd.Flags().StringVar(&opts.State, "state", "", "only show events for this state")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		return listRuns(ctx, st, formatter)
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		msg := fmt.Sprintf("run not found: %s", opts.RunID)
		_ = formatter.Error(ErrCodeRunNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	records, err := st.ReadEvents(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	formatter.VerboseLog("Read %d event(s) for run %s", len(records), run.ID)

	result, err := buildTraceResult(run, records, opts.State)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to digest trace", err)
	}

	if opts.Format == "json" {
		return formatter.Indented(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

func listRuns(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	entries := make([]RunEntry, 0, len(runs))
	for _, r := range runs {
		entries = append(entries, RunEntry{
			ID:        r.ID,
			Machine:   r.Machine,
			Modes:     r.Modes,
			Events:    r.Events,
			StartedAt: r.StartedAt,
		})
	}

	if formatter.Format == "json" {
		return formatter.Indented(CLIResponse{Status: "ok", Data: entries})
	}

	w := formatter.Writer
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-16s %-20s %5d events  %s\n",
			truncateID(e.ID), e.Machine, e.Modes, e.Events, e.StartedAt.Format(time.RFC3339))
	}
	return nil
}

// buildTraceResult assembles the timeline and statistics for a run. The
// digest always covers the full trace; the state filter only narrows the
// timeline.
func buildTraceResult(run store.Run, records []trace.Record, state string) (TraceResult, error) {
	digest, err := trace.Digest(records)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		RunID:      run.ID,
		Machine:    run.Machine,
		Modes:      run.Modes,
		ConfigHash: run.ConfigHash,
		Digest:     digest,
		Timeline:   []TraceEvent{},
	}

	for _, r := range records {
		result.Stats.TotalEvents++
		switch r.Kind {
		case "entered":
			result.Stats.Entered++
		case "exited":
			result.Stats.Exited++
		case "ticked":
			if r.Cadence == "fixed_tick" {
				result.Stats.FixedTicks++
			} else {
				result.Stats.Ticks++
			}
		case "paused":
			result.Stats.Pauses++
		}
		result.Stats.MaxDepth = max(result.Stats.MaxDepth, r.Depth)

		if state != "" && r.State != state {
			continue
		}
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:         r.Seq,
			Label:       r.Label(),
			Depth:       r.Depth,
			DeltaNS:     int64(r.Delta),
			TimeInState: int64(r.TimeInState),
		})
	}

	return result, nil
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.RunID)
	fmt.Fprintf(w, "Machine: %s (%s)\n", result.Machine, result.Modes)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, event := range result.Timeline {
		formatTimelineEvent(w, event, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Entered:      %d\n", result.Stats.Entered)
	fmt.Fprintf(w, "  Exited:       %d\n", result.Stats.Exited)
	fmt.Fprintf(w, "  Ticks:        %d\n", result.Stats.Ticks)
	fmt.Fprintf(w, "  Fixed Ticks:  %d\n", result.Stats.FixedTicks)
	fmt.Fprintf(w, "  Pauses:       %d\n", result.Stats.Pauses)
	fmt.Fprintf(w, "  Max Depth:    %d\n", result.Stats.MaxDepth)
	fmt.Fprintf(w, "  Digest:       %s\n", truncateID(result.Digest))

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s depth=%d\n", event.Seq, event.Label, event.Depth)
	if verbose {
		fmt.Fprintf(w, "       time_in_state=%s", time.Duration(event.TimeInState))
		if event.DeltaNS != 0 {
			fmt.Fprintf(w, " delta=%s", time.Duration(event.DeltaNS))
		}
		fmt.Fprintln(w)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
