package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyScenarios copies the harness scenarios and params into a temp dir and
// places the high_risk_alert golden trace next to them. Returns the
// scenarios directory.
func copyScenarios(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, os.DirFS("../harness/testdata")))

	scenarios := filepath.Join(dir, "scenarios")
	golden, err := os.ReadFile(filepath.Join(dir, "golden", "high_risk_alert.golden"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(scenarios, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "golden", "high_risk_alert.golden"), golden, 0o644))
	return scenarios
}

func executeTest(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := executeTest(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := executeTest(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := executeTest(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	out, err := executeTest(t, "json", t.TempDir())
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestTestCommandAllPass(t *testing.T) {
	out, err := executeTest(t, "text", copyScenarios(t))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ high_risk_alert\n")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandSingleFile(t *testing.T) {
	dir := copyScenarios(t)
	out, err := executeTest(t, "text", filepath.Join(dir, "boundary_errors.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := executeTest(t, "json", copyScenarios(t), "--filter", "high_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "high_risk_alert", resp.Data.Scenarios[0].Name)
	assert.Equal(t, 1, resp.Data.Passed)
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := copyScenarios(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "high_risk_alert.golden"), []byte("{}"), 0o644))

	out, err := executeTest(t, "text", dir, "--filter", "high_risk_alert")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ high_risk_alert")
	assert.Contains(t, out, "trace does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandUpdateWritesGoldens(t *testing.T) {
	dir := copyScenarios(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "golden")))

	out, err := executeTest(t, "text", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ excessive_transactions (golden updated)")

	for _, name := range []string{"boundary_errors", "excessive_transactions", "high_risk_alert", "inactive_update"} {
		assert.FileExists(t, filepath.Join(dir, "golden", name+".golden"))
	}
	want, err := os.ReadFile("../harness/testdata/golden/high_risk_alert.golden")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "golden", "high_risk_alert.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	_, err = executeTest(t, "text", dir)
	require.NoError(t, err)
}

func TestTestCommandFailingExpectation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", `name: wrong
steps:
  - insert:
      customers:
        - {id: 1, risk_level: high, status: active}
      transactions:
        - {id: 1, customer_id: 1, amount: "50000", location: loc_a}
    expect:
      score: "1"
`)

	out, err := executeTest(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, []string{"step 1: score: expected 1, got 1050"}, resp.Data.Scenarios[0].Errors)
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nsteps: []\n")

	out, err := executeTest(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "c.golden"), goldenFilePath(filepath.Join("a", "b", "c.yaml")))
}
