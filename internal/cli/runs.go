package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/report"
	"github.com/roach88/greynet/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// RunSummary is one recorded run in listings.
type RunSummary struct {
	Seq           int64             `json:"seq"`
	ID            string            `json:"id"`
	Facts         int64             `json:"facts"`
	Score         string            `json:"score"`
	Matches       int64             `json:"matches"`
	DatasetHash   string            `json:"dataset_hash"`
	ParamsHash    string            `json:"params_hash"`
	EngineVersion string            `json:"engine_version"`
	LoadMS        int64             `json:"load_ms"`
	ProcessingMS  int64             `json:"processing_ms"`
	Constraints   []ConstraintCount `json:"constraints"`
}

// ConstraintCount is one constraint's recorded totals.
type ConstraintCount struct {
	Name         string `json:"name"`
	Count        int64  `json:"count"`
	Contribution string `json:"contribution"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Long: `List the runs stored with "greynet run --record", oldest first.

Examples:
  greynet runs --db ./greynet.db
  greynet runs --db ./greynet.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ReadRuns(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i := range runs {
		summaries[i] = summarize(&runs[i])
	}

	if opts.Format == "json" {
		return formatter.Success(summaries)
	}

	w := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tFACTS\tSCORE\tMATCHES\tDATASET\tPARAMS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Seq, s.ID,
			report.Decimal(fmt.Sprint(s.Facts)),
			report.Decimal(s.Score),
			report.Decimal(fmt.Sprint(s.Matches)),
			short(s.DatasetHash), short(s.ParamsHash))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.Verbose {
		for _, s := range summaries {
			fmt.Fprintf(w, "\n%s (engine %s, load %d ms, processing %d ms)\n", s.ID, s.EngineVersion, s.LoadMS, s.ProcessingMS)
			for _, c := range s.Constraints {
				fmt.Fprintf(w, "  - %s: %s matches, %s penalty\n", c.Name, report.Decimal(fmt.Sprint(c.Count)), report.Decimal(c.Contribution))
			}
		}
	}
	return nil
}

func summarize(r *store.Run) RunSummary {
	s := RunSummary{
		Seq:           r.Seq,
		ID:            r.ID,
		Facts:         r.FactCount,
		Score:         ir.FormatDecimal(&r.Score),
		Matches:       r.MatchCount,
		DatasetHash:   r.DatasetHash,
		ParamsHash:    r.ParamsHash,
		EngineVersion: r.EngineVersion,
		LoadMS:        r.Load.Milliseconds(),
		ProcessingMS:  r.Processing.Milliseconds(),
		Constraints:   make([]ConstraintCount, len(r.Constraints)),
	}
	for i := range r.Constraints {
		c := &r.Constraints[i]
		s.Constraints[i] = ConstraintCount{Name: c.Name, Count: c.Count, Contribution: ir.FormatDecimal(&c.Contribution)}
	}
	return s
}

// short abbreviates a hex hash for tables.
func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
