package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/greynet/internal/ir"
)

func TestBuildersProduceValidFacts(t *testing.T) {
	facts := []ir.Fact{
		Customer(1, ir.RiskHigh, ir.StatusActive),
		Transaction(1, 1, "50000.00", "loc_a"),
		Alert("loc_a", 3),
	}
	facts = append(facts, Transactions(10, 3, 2, "1", "loc_b")...)

	for _, f := range facts {
		require.NoError(t, ir.Validate(f))
	}
	assert.Equal(t, int64(12), facts[5].(*ir.Transaction).ID)
}

func TestSequentialRunIDs(t *testing.T) {
	var g SequentialRunIDs
	assert.Equal(t, "run-0001", g.Generate())
	assert.Equal(t, "run-0002", g.Generate())
}
