package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/greynet/internal/generator"
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Database string
	Config   generator.Config
}

// GenerateResult reports what was written.
type GenerateResult struct {
	Database     string `json:"database"`
	Customers    int64  `json:"customers"`
	Transactions int64  `json:"transactions"`
	Alerts       int64  `json:"alerts"`
	Seed         uint64 `json:"seed"`
	DatasetHash  string `json:"dataset_hash"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts, Config: generator.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic dataset into SQLite",
		Long: `Generate a deterministic synthetic dataset of customers, transactions
and security alerts and store it in a SQLite database, replacing any facts
already there. Recorded runs are kept.

The same seed and sizes always produce the same dataset hash.

Example:
  greynet generate --db ./greynet.db
  greynet generate --db ./small.db --customers 100 --transactions 1000 --locations 20 --seed 7`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required, created if missing)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Config.Customers, "customers", generator.DefaultCustomers, "number of customers")
	cmd.Flags().IntVar(&opts.Config.Transactions, "transactions", generator.DefaultTransactions, "number of transactions")
	cmd.Flags().IntVar(&opts.Config.Locations, "locations", generator.DefaultLocations, "number of distinct locations")
	cmd.Flags().Uint64Var(&opts.Config.Seed, "seed", generator.DefaultSeed, "random seed")

	return cmd
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := commandContext(cmd)

	if err := opts.Config.Validate(); err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid generator config", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.Reset(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear facts", err)
	}

	formatter.VerboseLog("Generating %d facts (seed %d)...", opts.Config.Total(), opts.Config.Seed)
	h := ir.NewDatasetHasher()
	_, err = st.WriteFacts(ctx, func(emit func(ir.Fact) error) error {
		return generator.Generate(opts.Config, func(f ir.Fact) error {
			if err := h.Add(f); err != nil {
				return err
			}
			return emit(f)
		})
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write dataset", err)
	}

	counts, err := st.Counts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count facts", err)
	}

	result := GenerateResult{
		Database:     opts.Database,
		Customers:    counts.Customers,
		Transactions: counts.Transactions,
		Alerts:       counts.Alerts,
		Seed:         opts.Config.Seed,
		DatasetHash:  h.Sum(),
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Generated %d customers, %d transactions, %d security alerts into %s\n",
		result.Customers, result.Transactions, result.Alerts, result.Database)
	fmt.Fprintf(w, "Dataset hash: %s\n", result.DatasetHash)
	return nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
