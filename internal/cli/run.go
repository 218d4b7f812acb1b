package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/greynet/internal/constraints"
	"github.com/roach88/greynet/internal/engine"
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/report"
	"github.com/roach88/greynet/internal/store"
	"github.com/roach88/greynet/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Params    string
	BatchSize int
	Record    bool
	Trace     string

	// Now allows overriding the wall clock (for testing).
	// If nil, defaults to time.Now.
	Now func() time.Time

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs store.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score the stored dataset and print a report",
		Long: `Build the constraint network, load every stored fact into it in
batches, and print the final score with a performance summary.

With --record the result is stored as a run that "greynet runs" lists
and "greynet verify --run" checks against.

Example:
  greynet run --db ./greynet.db
  greynet run --db ./greynet.db --params ./tuning.cue --record
  greynet run --db ./greynet.db --trace stdout --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScoring(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Params, "params", "", "CUE tuning file (defaults to the reference tuning)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", DefaultBatchSize, "facts per batch")
	cmd.Flags().BoolVar(&opts.Record, "record", false, "store the result as a run")
	cmd.Flags().StringVar(&opts.Trace, "trace", "none", "span exporter (none|stdout); spans are written to stderr")

	return cmd
}

func runScoring(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := commandContext(cmd)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	tp, shutdown, err := telemetry.TracerProvider(opts.Trace, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --trace", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("failed to flush spans", "error", err)
		}
	}()

	setupStart := now()
	params, err := loadParams(opts.Params)
	if err != nil {
		return err
	}
	ev, err := newEvaluator(params, logger, opts.BatchSize, engine.WithTracerProvider(tp))
	if err != nil {
		return err
	}

	loadStart := now()
	facts, err := st.ReadFacts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read dataset", err)
	}
	formatter.VerboseLog("Loaded %d facts from %s", len(facts), opts.Database)

	processStart := now()
	if err := applyFacts(ctx, ev, facts, opts.BatchSize); err != nil {
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}
	end := now()

	rep := &report.Report{
		Facts:      int64(len(facts)),
		Setup:      loadStart.Sub(setupStart),
		Load:       processStart.Sub(loadStart),
		Processing: end.Sub(processStart),
		HeapBytes:  heapInUse(),
		Snapshot:   ev.Snapshot(),
	}

	var runID string
	if opts.Record {
		rec, err := recordRun(ctx, st, opts.RunIDs, rep, params, facts)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		runID = rec.ID
		logger.Info("run recorded", "id", rec.ID, "seq", rec.Seq)
	}

	if opts.Format == "json" {
		data := report.Object(rep)
		if runID != "" {
			data["run_id"] = runID
		}
		return formatter.Success(data)
	}

	w := cmd.OutOrStdout()
	if err := report.Markdown(w, rep); err != nil {
		return err
	}
	if runID != "" {
		fmt.Fprintf(w, "\nRecorded run %s\n", runID)
	}
	return nil
}

// recordRun stores the outcome of a run together with the fingerprint of
// the facts it scored.
func recordRun(ctx context.Context, st *store.Store, gen store.RunIDGenerator, rep *report.Report,
	params constraints.Params, facts []ir.Fact) (store.Run, error) {
	if gen == nil {
		gen = store.UUIDv7Generator{}
	}
	h := ir.NewDatasetHasher()
	for _, f := range facts {
		if err := h.Add(f); err != nil {
			return store.Run{}, err
		}
	}

	run, err := store.NewRun(rep.Snapshot, params.Object())
	if err != nil {
		return store.Run{}, err
	}
	run.DatasetHash = h.Sum()
	run.FactCount = h.Count()
	run.Load = rep.Load
	run.Processing = rep.Processing
	return st.WriteRun(ctx, gen, run)
}

func heapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse
}
