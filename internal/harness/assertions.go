package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/greynet/internal/engine"
	"github.com/roach88/greynet/internal/ir"
)

// AssertionError is one failed expectation.
type AssertionError struct {
	Field    string // What was checked, e.g. "score" or "constraints.x.count"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// checkExpect compares the evaluator's committed state and the step's
// error against exp and returns one message per failed expectation.
func checkExpect(e *engine.Evaluator, exp *Expect, applyErr error) []string {
	var failures []error

	code := string(engine.CodeOf(applyErr))
	switch {
	case exp.Error == "" && applyErr != nil:
		failures = append(failures, &AssertionError{Field: "error", Expected: "none", Actual: applyErr.Error()})
	case exp.Error != "" && applyErr == nil:
		failures = append(failures, &AssertionError{Field: "error", Expected: exp.Error, Actual: "none"})
	case exp.Error != "" && code != exp.Error:
		failures = append(failures, &AssertionError{Field: "error", Expected: exp.Error, Actual: code})
	}

	snap := e.Snapshot()
	if exp.Score != "" {
		if err := decimalEqual("score", exp.Score, ir.FormatDecimal(&snap.Total)); err != nil {
			failures = append(failures, err)
		}
	}

	for _, name := range sortedKeys(exp.Constraints) {
		want := exp.Constraints[name]
		got, ok := snap.Constraint(name)
		if !ok {
			failures = append(failures, &AssertionError{Field: "constraints." + name, Expected: "defined", Actual: "unknown constraint"})
			continue
		}
		if want.Count != nil && *want.Count != got.Count {
			failures = append(failures, &AssertionError{
				Field:    "constraints." + name + ".count",
				Expected: fmt.Sprint(*want.Count),
				Actual:   fmt.Sprint(got.Count),
			})
		}
		if want.Contribution != "" {
			if err := decimalEqual("constraints."+name+".contribution", want.Contribution, ir.FormatDecimal(&got.Contribution)); err != nil {
				failures = append(failures, err)
			}
		}
	}

	for _, name := range sortedKeys(exp.Matches) {
		matches, err := e.Matches(name)
		if err != nil {
			failures = append(failures, &AssertionError{Field: "matches." + name, Expected: "defined", Actual: err.Error()})
			continue
		}
		got := make([]string, len(matches))
		for i, m := range matches {
			got[i] = m.Tuple.Key()
		}
		want := slices.Clone(exp.Matches[name])
		slices.Sort(got)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			failures = append(failures, &AssertionError{
				Field:    "matches." + name,
				Expected: "[" + strings.Join(want, ", ") + "]",
				Actual:   "[" + strings.Join(got, ", ") + "]",
			})
		}
	}

	msgs := make([]string, len(failures))
	for i, f := range failures {
		msgs[i] = f.Error()
	}
	return msgs
}

// decimalEqual compares two decimal strings by value, so "50" matches
// "50.00".
func decimalEqual(field, want, got string) error {
	w, err := ir.ParseDecimal(want)
	if err != nil {
		return &AssertionError{Field: field, Expected: want, Actual: "unparseable expectation: " + err.Error()}
	}
	g, err := ir.ParseDecimal(got)
	if err != nil {
		return &AssertionError{Field: field, Expected: want, Actual: got}
	}
	if w.Cmp(g) != 0 {
		return &AssertionError{Field: field, Expected: want, Actual: got}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
