package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/greynet/internal/ir"
)

func TestAccumulator_ApplyAndSnapshot(t *testing.T) {
	a := NewAccumulator()
	require.NoError(t, a.Register("high_value_transaction"))
	require.NoError(t, a.Register("high_risk_transaction_without_alert"))
	require.NoError(t, a.Register("excessive_transactions_per_customer"))

	require.NoError(t, a.Apply(Delta{Constraint: "high_value_transaction", Sign: 1, Weight: ir.MustDecimal("50")}))
	require.NoError(t, a.Apply(Delta{Constraint: "high_risk_transaction_without_alert", Sign: 1, Weight: ir.MustDecimal("1000")}))

	snap := a.Snapshot(1)
	assert.Equal(t, "1050", ir.FormatDecimal(&snap.Total))
	assert.Equal(t, int64(2), snap.MatchTotal())

	names := make([]string, len(snap.Constraints))
	for i, c := range snap.Constraints {
		names[i] = c.Name
	}
	assert.Equal(t, []string{
		"excessive_transactions_per_customer",
		"high_risk_transaction_without_alert",
		"high_value_transaction",
	}, names, "constraints are sorted by name")

	hv, ok := snap.Constraint("high_value_transaction")
	require.True(t, ok)
	assert.Equal(t, int64(1), hv.Count)
	assert.Equal(t, "50", ir.FormatDecimal(&hv.Contribution))

	require.NoError(t, a.Apply(Delta{Constraint: "high_risk_transaction_without_alert", Sign: -1, Weight: ir.MustDecimal("1000")}))
	later := a.Snapshot(2)
	assert.Equal(t, "50", ir.FormatDecimal(&later.Total))
	assert.Equal(t, "1050", ir.FormatDecimal(&snap.Total), "earlier snapshots are unaffected")
}

func TestAccumulator_Errors(t *testing.T) {
	a := NewAccumulator()
	require.NoError(t, a.Register("c"))
	assert.Error(t, a.Register("c"))

	assert.Error(t, a.Apply(Delta{Constraint: "missing", Sign: 1, Weight: ir.MustDecimal("1")}))
	assert.Error(t, a.Apply(Delta{Constraint: "c", Sign: 1}))
	assert.Error(t, a.Apply(Delta{Constraint: "c", Sign: 0, Weight: ir.MustDecimal("1")}))
	assert.Error(t, a.Apply(Delta{Constraint: "c", Sign: -1, Weight: ir.MustDecimal("1")}),
		"retracting from an empty constraint")
}

func TestSnapshot_Object(t *testing.T) {
	a := NewAccumulator()
	require.NoError(t, a.Register("high_value_transaction"))
	require.NoError(t, a.Apply(Delta{Constraint: "high_value_transaction", Sign: 1, Weight: ir.MustDecimal("50.000")}))

	out, err := ir.MarshalCanonical(a.Snapshot(1).Object())
	require.NoError(t, err)
	assert.Equal(t,
		`{"constraints":[{"contribution":"50","count":1,"name":"high_value_transaction"}],"score":"50"}`,
		string(out))
}

func TestEmpty(t *testing.T) {
	s := Empty("b", "a")
	assert.Equal(t, "a", s.Constraints[0].Name)
	assert.Equal(t, "0", ir.FormatDecimal(&s.Total))
	_, ok := s.Constraint("b")
	assert.True(t, ok)
}

func TestAccumulator_SumsAreOrderIndependent(t *testing.T) {
	weights := []string{"2857.2857142857", "1000000000000000000000", "0.0000000001", "3142.8571428571", "50"}

	total := func(order []int) string {
		a := NewAccumulator()
		require.NoError(t, a.Register("c"))
		for _, i := range order {
			require.NoError(t, a.Apply(Delta{Constraint: "c", Sign: 1, Weight: ir.MustDecimal(weights[i])}))
		}
		require.NoError(t, a.Apply(Delta{Constraint: "c", Sign: -1, Weight: ir.MustDecimal(weights[1])}))
		s := a.Snapshot(1)
		return ir.FormatDecimal(&s.Total)
	}

	assert.Equal(t, "6050.1428571429", total([]int{0, 1, 2, 3, 4}))
	assert.Equal(t, "6050.1428571429", total([]int{4, 3, 2, 1, 0}))
}
