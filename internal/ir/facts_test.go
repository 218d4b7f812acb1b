package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactIDRoundTrip(t *testing.T) {
	id := FactID{Type: TypeTransaction, Key: 42}
	assert.Equal(t, "Transaction#42", id.String())

	parsed, err := ParseFactID("transaction#42")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseFactID("Transaction42")
	assert.Error(t, err)
	_, err = ParseFactID("Invoice#1")
	assert.Error(t, err)
}

func TestParseFactType(t *testing.T) {
	for in, want := range map[string]FactType{
		"Customer":       TypeCustomer,
		"transactions":   TypeTransaction,
		"alert":          TypeSecurityAlert,
		"security_alert": TypeSecurityAlert,
	} {
		got, err := ParseFactType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []FactType{TypeCustomer, TypeTransaction, TypeSecurityAlert}, r.Types())

	s, ok := r.Lookup(TypeTransaction)
	require.True(t, ok)
	key, natural := s.Identity(&Transaction{ID: 9})
	assert.True(t, natural)
	assert.Equal(t, int64(9), key)

	alert, _ := r.Lookup(TypeSecurityAlert)
	_, natural = alert.Identity(alert.Sample())
	assert.False(t, natural)

	err := r.Register(CustomerSchema())
	assert.ErrorContains(t, err, "already registered")
}

func TestSampleFactsAreValid(t *testing.T) {
	r := DefaultRegistry()
	for _, typ := range r.Types() {
		s, _ := r.Lookup(typ)
		assert.NoError(t, Validate(s.Sample()), typ.String())
	}
}
