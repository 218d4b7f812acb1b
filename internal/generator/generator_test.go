package generator

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/greynet/internal/ir"
)

func small() Config {
	return Config{Customers: 50, Transactions: 400, Locations: 20, Seed: 7}
}

func objects(t *testing.T, cfg Config) []map[string]any {
	t.Helper()
	facts, err := Facts(cfg)
	require.NoError(t, err)
	out := make([]map[string]any, len(facts))
	for i, f := range facts {
		out[i] = ir.FactObject(f)
	}
	return out
}

func TestGenerate_Deterministic(t *testing.T) {
	a := objects(t, small())
	b := objects(t, small())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different data (-first +second):\n%s", diff)
	}

	other := small()
	other.Seed = 8
	assert.NotEqual(t, a, objects(t, other))
}

func TestGenerate_ShapeAndOrder(t *testing.T) {
	cfg := small()
	facts, err := Facts(cfg)
	require.NoError(t, err)
	require.Len(t, facts, cfg.Total())
	assert.Equal(t, 50+400+5, cfg.Total())

	lo, hi := amountBounds()
	alerted := make(map[string]bool)
	for i, f := range facts {
		require.NoError(t, ir.Validate(f), "fact %d", i)
		switch v := f.(type) {
		case *ir.Customer:
			assert.Less(t, i, cfg.Customers)
			assert.Equal(t, int64(i+1), v.ID)
		case *ir.Transaction:
			assert.Equal(t, int64(i-cfg.Customers+1), v.ID)
			assert.GreaterOrEqual(t, v.CustomerID, int64(1))
			assert.LessOrEqual(t, v.CustomerID, int64(cfg.Customers))
			assert.GreaterOrEqual(t, v.Amount.Cmp(lo), 0, "amount %s", v.Amount.String())
			assert.Negative(t, v.Amount.Cmp(hi), "amount %s", v.Amount.String())
			assert.GreaterOrEqual(t, v.Amount.Exponent, int32(-2))
		case *ir.SecurityAlert:
			assert.GreaterOrEqual(t, i, cfg.Customers+cfg.Transactions)
			assert.False(t, alerted[v.Location], "location %s alerted twice", v.Location)
			alerted[v.Location] = true
		}
	}
	assert.Len(t, alerted, cfg.AlertCount())
}

func TestGenerate_InactiveRate(t *testing.T) {
	cfg := Config{Customers: 20_000, Transactions: 0, Locations: 1, Seed: 1}
	inactive := 0
	require.NoError(t, Generate(cfg, func(f ir.Fact) error {
		if c, ok := f.(*ir.Customer); ok && c.Status == ir.StatusInactive {
			inactive++
		}
		return nil
	}))
	assert.InDelta(t, 1000, inactive, 200)
}

func TestConfig_AlertCount(t *testing.T) {
	tests := []struct {
		locations int
		want      int
	}{
		{1, 1},
		{3, 1},
		{4, 1},
		{8, 2},
		{1000, 250},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Config{Locations: tt.locations}.AlertCount(), "locations=%d", tt.locations)
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	err := Config{Customers: 0, Transactions: -1, Locations: 0}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customers")
	assert.Contains(t, err.Error(), "transactions")
	assert.Contains(t, err.Error(), "locations")

	_, err = Facts(Config{})
	assert.Error(t, err)
}

func TestGenerate_StopsOnEmitError(t *testing.T) {
	stop := errors.New("stop")
	seen := 0
	err := Generate(small(), func(ir.Fact) error {
		seen++
		if seen == 10 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 10, seen)
}
