package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/greynet/internal/ir"
)

// TraceJSON renders a scenario trace as canonical JSON, the format of the
// golden files.
func TraceJSON(scenarioName string, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Trace))
	for i := range result.Trace {
		steps[i] = result.Trace[i].object()
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario": scenarioName,
		"steps":    steps,
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
