// Package compiler turns CUE tuning files into constraint parameters.
//
// A tuning file is unified with an embedded closed schema, so unknown
// fields, wrong types and out-of-range values are reported with the file
// position of the offending value.
package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/format"
	"cuelang.org/go/cue/token"

	"github.com/roach88/greynet/internal/constraints"
)

//go:embed schema.cue
var schemaSource []byte

// CompileError is a tuning file error with its CUE position, if known.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// schema returns the #Params definition compiled in ctx.
func schema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("embedded schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Params")), nil
}

// CompileParams unifies v with the tuning schema and decodes the result.
func CompileParams(v cue.Value) (constraints.Params, error) {
	if err := v.Err(); err != nil {
		return constraints.Params{}, formatCUEError(err)
	}
	def, err := schema(v.Context())
	if err != nil {
		return constraints.Params{}, err
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return constraints.Params{}, formatCUEError(err)
	}

	var p constraints.Params
	if err := unified.Decode(&p); err != nil {
		return constraints.Params{}, formatCUEError(err)
	}
	if err := p.Validate(); err != nil {
		return constraints.Params{}, &CompileError{Field: "params", Message: err.Error(), Pos: v.Pos()}
	}
	return p, nil
}

// CompileSource compiles tuning source; filename is used in positions.
func CompileSource(filename string, src []byte) (constraints.Params, error) {
	ctx := cuecontext.New()
	return CompileParams(ctx.CompileBytes(src, cue.Filename(filename)))
}

// LoadParams compiles the tuning file at path. An empty path selects the
// defaults.
func LoadParams(path string) (constraints.Params, error) {
	if path == "" {
		return constraints.DefaultParams(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return constraints.Params{}, fmt.Errorf("read params: %w", err)
	}
	return CompileSource(path, src)
}

// Format renders params as a CUE tuning file.
func Format(p constraints.Params) ([]byte, error) {
	v := cuecontext.New().Encode(p)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	out, err := format.Node(v.Syntax(cue.Final(), cue.Concrete(true)))
	if err != nil {
		return nil, fmt.Errorf("format params: %w", err)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors; the first is reported.
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	if pos, ok := userPosition(errors.Positions(first)); ok {
		return &CompileError{Field: field, Message: messageOf(first), Pos: pos}
	}
	return &CompileError{Field: field, Message: messageOf(first)}
}

// userPosition prefers a position in the tuning file over one in the
// embedded schema.
func userPosition(positions []token.Pos) (token.Pos, bool) {
	for _, p := range positions {
		if p.IsValid() && p.Filename() != "schema.cue" {
			return p, true
		}
	}
	if len(positions) > 0 {
		return positions[0], true
	}
	return token.NoPos, false
}

func messageOf(err errors.Error) string {
	format, args := err.Msg()
	return fmt.Sprintf(format, args...)
}
