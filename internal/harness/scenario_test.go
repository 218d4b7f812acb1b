package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: basic
steps:
  - name: load
    insert:
      customers:
        - {ref: c, id: 1, risk_level: low, status: active}
      transactions:
        - {id: 7, customer_id: 1, amount: "12.50", location: x}
    expect:
      score: "0"
      constraints:
        inactive_customer_transaction: {count: 0}
  - update:
      - target: "@c"
        customer: {id: 1, risk_level: low, status: inactive}
  - retract: ["Transaction#7"]
`))
	require.NoError(t, err)

	assert.Equal(t, "basic", s.Name)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, OpInsert, s.Steps[0].Op())
	assert.Equal(t, OpUpdate, s.Steps[1].Op())
	assert.Equal(t, OpRetract, s.Steps[2].Op())
	assert.Equal(t, "12.50", s.Steps[0].Insert.Transactions[0].Amount)
	require.NotNil(t, s.Steps[0].Expect.Constraints["inactive_customer_transaction"].Count)
	assert.Equal(t, int64(0), *s.Steps[0].Expect.Constraints["inactive_customer_transaction"].Count)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		contains string
	}{
		{
			name:     "missing name",
			yaml:     "steps:\n  - retract: [\"Customer#1\"]\n",
			contains: "name is required",
		},
		{
			name:     "name with space",
			yaml:     "name: a b\nsteps:\n  - retract: [\"Customer#1\"]\n",
			contains: "must not contain",
		},
		{
			name:     "no steps",
			yaml:     "name: a\n",
			contains: "steps list is required",
		},
		{
			name:     "unknown field",
			yaml:     "name: a\nflow: []\nsteps:\n  - retract: [\"Customer#1\"]\n",
			contains: "failed to parse YAML",
		},
		{
			name:     "two operations",
			yaml:     "name: a\nsteps:\n  - retract: [\"Customer#1\"]\n    insert:\n      customers: [{id: 1, risk_level: low, status: active}]\n",
			contains: "exactly one of insert, retract or update",
		},
		{
			name:     "no operation",
			yaml:     "name: a\nsteps:\n  - name: empty\n",
			contains: "exactly one of insert, retract or update",
		},
		{
			name:     "empty insert",
			yaml:     "name: a\nsteps:\n  - insert: {}\n",
			contains: "insert lists no facts",
		},
		{
			name:     "unknown ref",
			yaml:     "name: a\nsteps:\n  - retract: [\"@nope\"]\n",
			contains: `unknown ref "nope"`,
		},
		{
			name: "ref defined twice",
			yaml: `name: a
steps:
  - insert:
      alerts:
        - {ref: x, location: l, severity: 1}
        - {ref: x, location: l, severity: 2}
`,
			contains: `ref "x" is defined twice`,
		},
		{
			name:     "bad fact id",
			yaml:     "name: a\nsteps:\n  - retract: [\"Order#1\"]\n",
			contains: "retract[0]",
		},
		{
			name: "update without replacement",
			yaml: `name: a
steps:
  - update:
      - target: "Customer#1"
`,
			contains: "exactly one of customer, transaction or alert",
		},
		{
			name: "constraint expect without fields",
			yaml: `name: a
steps:
  - retract: ["Customer#1"]
    expect:
      constraints:
        high_value_transaction: {}
`,
			contains: "count or contribution is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadScenario_ResolvesParams(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "high_risk_alert.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "params", "narrow.cue"), s.Params)
}

func TestLoadScenario_MissingParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: s\nparams: missing.cue\nsteps:\n  - retract: [\"Customer#1\"]\n"), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "params file")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestDiscover(t *testing.T) {
	files, err := Discover(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "boundary_errors.yaml"),
		filepath.Join("testdata", "scenarios", "excessive_transactions.yaml"),
		filepath.Join("testdata", "scenarios", "high_risk_alert.yaml"),
		filepath.Join("testdata", "scenarios", "inactive_update.yaml"),
	}, files)

	single := filepath.Join("testdata", "scenarios", "high_risk_alert.yaml")
	files, err = Discover(single)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, files)

	_, err = Discover(filepath.Join("testdata", "absent"))
	assert.Error(t, err)
}
