package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/greynet/internal/compiler"
	"github.com/roach88/greynet/internal/constraints"
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/oracle"
	"github.com/roach88/greynet/internal/score"
	"github.com/roach88/greynet/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database  string
	Params    string
	RunID     string // optional - also check a recorded run
	BatchSize int
}

// VerifyResult holds the outcome of a verification.
type VerifyResult struct {
	Facts       int64    `json:"facts"`
	Score       string   `json:"score"`
	OracleScore string   `json:"oracle_score"`
	RunID       string   `json:"run_id,omitempty"`
	Differences []string `json:"differences"`
	Match       bool     `json:"match"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the incremental score against a from-scratch recomputation",
		Long: `Score the stored dataset twice, once with the incremental evaluator and
once with a Datalog recomputation, and compare every constraint's match
count and contribution.

With --run the recorded run is replayed: its tuning is used, the dataset
must still have the recorded fingerprint, and the recorded totals must
match as well.

Exit codes:
  0 - Evaluator, oracle and recorded run agree
  1 - A difference was found
  2 - Command error (database not found, unknown run, etc.)

Examples:
  greynet verify --db ./greynet.db
  greynet verify --db ./greynet.db --params ./tuning.cue
  greynet verify --db ./greynet.db --run 01927c3e-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Params, "params", "", "CUE tuning file (defaults to the reference tuning)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "recorded run to replay")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", DefaultBatchSize, "facts per batch")
	cmd.MarkFlagsMutuallyExclusive("params", "run")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		params   constraints.Params
		recorded *store.Run
	)
	if opts.RunID != "" {
		rec, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("run %s not found", opts.RunID), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		params, err = compiler.CompileSource("run "+rec.ID, []byte(rec.Params))
		if err != nil {
			return WrapExitError(ExitCommandError, "recorded params no longer compile", err)
		}
		recorded = &rec
	} else if params, err = loadParams(opts.Params); err != nil {
		return err
	}

	facts, err := st.ReadFacts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read dataset", err)
	}
	formatter.VerboseLog("Verifying %d facts", len(facts))

	ev, err := newEvaluator(params, logger, opts.BatchSize)
	if err != nil {
		return err
	}

	var want *score.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return applyFacts(gctx, ev, facts, opts.BatchSize)
	})
	g.Go(func() error {
		var err error
		want, err = oracle.Recompute(params, facts)
		return err
	})
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "evaluation failed", err)
	}
	got := ev.Snapshot()

	result := VerifyResult{
		Facts:       int64(len(facts)),
		Score:       ir.FormatDecimal(&got.Total),
		OracleScore: ir.FormatDecimal(&want.Total),
		RunID:       opts.RunID,
		Differences: []string{},
	}
	for _, d := range oracle.Compare(got, want) {
		result.Differences = append(result.Differences, "oracle: "+d.String())
	}
	if recorded != nil {
		result.Differences = append(result.Differences, compareRecorded(recorded, got, facts)...)
	}
	result.Match = len(result.Differences) == 0

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputVerifyText(formatter, result)
	}
	if !result.Match {
		return NewExitError(ExitFailure, fmt.Sprintf("%d difference(s) found", len(result.Differences)))
	}
	return nil
}

// compareRecorded checks the dataset fingerprint and the totals of a
// recorded run.
func compareRecorded(rec *store.Run, got *score.Snapshot, facts []ir.Fact) []string {
	var diffs []string
	h := ir.NewDatasetHasher()
	for _, f := range facts {
		if err := h.Add(f); err != nil {
			return append(diffs, "dataset: "+err.Error())
		}
	}
	if h.Sum() != rec.DatasetHash {
		diffs = append(diffs, fmt.Sprintf("dataset: fingerprint changed since run %s (%d facts then, %d now)",
			rec.ID, rec.FactCount, h.Count()))
	}
	for _, d := range oracle.Compare(got, rec.Snapshot()) {
		diffs = append(diffs, "recorded: "+d.String())
	}
	return diffs
}

func outputVerifyText(f *OutputFormatter, r VerifyResult) {
	w := f.Writer
	if r.Match {
		if r.RunID != "" {
			fmt.Fprintf(w, "✓ evaluator, oracle and run %s agree (%d facts, score %s)\n", r.RunID, r.Facts, r.Score)
			return
		}
		fmt.Fprintf(w, "✓ evaluator and oracle agree (%d facts, score %s)\n", r.Facts, r.Score)
		return
	}
	fmt.Fprintf(w, "✗ %d difference(s) found (evaluator %s, oracle %s)\n", len(r.Differences), r.Score, r.OracleScore)
	for _, d := range r.Differences {
		fmt.Fprintf(w, "  %s\n", d)
	}
}
