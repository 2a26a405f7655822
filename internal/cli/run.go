package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fsmstack/internal/config"
	"github.com/roach88/fsmstack/internal/driver"
	"github.com/roach88/fsmstack/internal/fsm"
	"github.com/roach88/fsmstack/internal/metrics"
	"github.com/roach88/fsmstack/internal/store"
	"github.com/roach88/fsmstack/internal/trace"
)

// DefaultFlushInterval is how often a running machine's trace is written
// to the store.
const DefaultFlushInterval = time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Machine     string
	Database    string
	Duration    time.Duration
	MetricsAddr string

	// RunIDs overrides the run ID generator (for testing).
	// If nil, defaults to trace.UUIDv7Generator.
	RunIDs trace.RunIDGenerator

	// FlushInterval overrides DefaultFlushInterval (for testing).
	FlushInterval time.Duration
}

// RunSummary is printed when a run finishes.
type RunSummary struct {
	RunID      string   `json:"run_id"`
	Machine    string   `json:"machine"`
	Events     int64    `json:"events"`
	Ticks      int64    `json:"ticks"`
	FixedTicks int64    `json:"fixed_ticks"`
	Skipped    int64    `json:"skipped"`
	Final      []string `json:"final_stack"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config-dir>",
		Short: "Run a machine against the wall clock",
		Long: `Run a machine from a config directory in real time.

The machine is driven at its configured tick and fixed rates until the
duration elapses or the process is interrupted. Every lifecycle event is
recorded to the SQLite database under a new run ID, which is printed on
exit. Use 'fsmstack trace' to inspect it.

Example:
  fsmstack run ./machines --db ./runs.db --machine player --duration 5s
  fsmstack run ./machines --db ./runs.db --metrics-addr :9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Machine, "machine", "", "machine to run (required when more than one is defined)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runMachine(opts *RunOptions, configDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	logger.Info("loading machines", "dir", configDir)
	loadResult, loadErrors := LoadMachines(configDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return WrapExitError(ExitCommandError, "failed to load machines", loadErrors[0])
	}
	spec, err := loadResult.Machine(opts.Machine)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to select machine", err)
	}
	for _, w := range spec.Warnings() {
		logger.Warn("machine definition", "machine", spec.Name, "warning", w)
	}
	if len(spec.Modes.Cadences()) == 0 {
		return WrapExitError(ExitCommandError, fmt.Sprintf("machine %s cannot run", spec.Name), driver.ErrManualMode)
	}

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = trace.UUIDv7Generator{}
	}
	runID := runIDs.Generate()

	recorder := trace.NewRecorder(runID)
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	m, err := config.Build(spec, logger,
		fsm.WithListener(recorder),
		fsm.WithListener(collector),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build machine", err)
	}

	hash, err := config.Hash(spec)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash machine", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	if err := st.WriteRun(ctx, store.Run{
		ID:         runID,
		Machine:    spec.Name,
		Initial:    string(spec.Initial),
		Modes:      spec.Modes.String(),
		ConfigHash: hash,
		StartedAt:  time.Now().UTC(),
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", err)
	}

	runner := driver.NewRunner(m,
		driver.WithTickRate(spec.TickRate),
		driver.WithFixedRate(spec.FixedRate),
		driver.WithRunnerLogger(logger),
	)

	logger.Info("run starting", "run_id", runID, "machine", spec.Name, "db", opts.Database)
	if err := serve(ctx, runner, recorder, st, reg, opts, logger); err != nil {
		return WrapExitError(ExitFailure, "run failed", err)
	}

	// The runner has stopped, so nothing else is recorded after this.
	if err := recorder.Flush(context.Background(), st); err != nil {
		return WrapExitError(ExitCommandError, "failed to write trace", err)
	}
	events, err := st.LastSeq(context.Background(), runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	summary := RunSummary{
		RunID:      runID,
		Machine:    spec.Name,
		Events:     events,
		Ticks:      runner.Steps(fsm.CadenceTick),
		FixedTicks: runner.Steps(fsm.CadenceFixedTick),
		Skipped:    runner.Skipped(fsm.CadenceTick) + runner.Skipped(fsm.CadenceFixedTick),
		Final:      stackNames(m),
	}
	logger.Info("run stopped", "run_id", runID, "events", events)

	if formatter.Format == "json" {
		return formatter.Indented(CLIResponse{Status: "ok", Data: summary, RunID: runID})
	}

	fmt.Fprintf(formatter.Writer, "Run %s\n", runID)
	fmt.Fprintf(formatter.Writer, "  machine:     %s\n", summary.Machine)
	fmt.Fprintf(formatter.Writer, "  events:      %d\n", summary.Events)
	fmt.Fprintf(formatter.Writer, "  ticks:       %d\n", summary.Ticks)
	fmt.Fprintf(formatter.Writer, "  fixed ticks: %d\n", summary.FixedTicks)
	if summary.Skipped > 0 {
		fmt.Fprintf(formatter.Writer, "  skipped:     %d\n", summary.Skipped)
	}
	fmt.Fprintf(formatter.Writer, "  final stack: %v\n", summary.Final)
	return nil
}

// serve drives the runner until ctx is done, flushing the trace
// periodically and serving metrics when an address is configured.
func serve(
	ctx context.Context,
	runner *driver.Runner,
	recorder *trace.Recorder,
	st *store.Store,
	reg *prometheus.Registry,
	opts *RunOptions,
	logger *slog.Logger,
) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := runner.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	interval := opts.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := recorder.Flush(gctx, st); err != nil && gctx.Err() == nil {
					logger.Warn("trace flush failed", "error", err)
				}
			}
		}
	})

	if opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", opts.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}

func stackNames(m *fsm.Machine) []string {
	refs := m.Stack()
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = string(ref.Key())
	}
	return names
}
