package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/greynet/internal/compiler"
	"github.com/roach88/greynet/internal/constraints"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool               `json:"valid"`
	Params  constraints.Params `json:"params"`
	Enabled []string           `json:"enabled"`
}

// ValidationError locates a rejected tuning file.
type ValidationError struct {
	Field  string `json:"field"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <params.cue>",
		Short: "Validate a tuning file and print the resolved params",
		Long: `Compile a CUE tuning file against the params schema and print the
resolved tuning, defaults included. Errors carry the file position.

Example:
  greynet validate ./tuning.cue
  greynet validate ./tuning.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Compiling %s", path)

	params, err := compiler.LoadParams(path)
	if err != nil {
		var cErr *compiler.CompileError
		if errors.As(err, &cErr) {
			details := ValidationError{Field: cErr.Field}
			if cErr.Pos.IsValid() {
				details.Line = cErr.Pos.Line()
				details.Column = cErr.Pos.Column()
			}
			if outErr := formatter.Error(ErrCodeParams, cErr.Error(), details); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "invalid params", err)
		}
		if outErr := formatter.Error(ErrCodeNotFound, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "failed to read params", err)
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Params: params, Enabled: params.Enabled()})
	}

	src, err := compiler.Format(params)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to format params", err)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s is valid (%d of %d constraints enabled)\n\n", path, len(params.Enabled()), len(constraints.Names()))
	_, err = w.Write(src)
	return err
}
