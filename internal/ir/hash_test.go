package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactHashDeterminism(t *testing.T) {
	tx := &Transaction{ID: 1, CustomerID: 1, Amount: *MustDecimal("50000"), Location: "loc_a"}
	same := &Transaction{ID: 1, CustomerID: 1, Amount: *MustDecimal("50000.00"), Location: "loc_a"}
	other := &Transaction{ID: 2, CustomerID: 1, Amount: *MustDecimal("50000"), Location: "loc_a"}

	h1, err := FactHash(tx)
	require.NoError(t, err)
	h2, err := FactHash(same)
	require.NoError(t, err)
	h3, err := FactHash(other)
	require.NoError(t, err)

	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
	assert.Equal(t, h1, h2, "equal amounts at different scales hash equally")
	assert.NotEqual(t, h1, h3)
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte(`{"id":1}`)
	assert.NotEqual(t, hashWithDomain(DomainFact, data), hashWithDomain(DomainDataset, data))
}

func TestDatasetHasher(t *testing.T) {
	facts := []Fact{
		&Customer{ID: 1, RiskLevel: RiskHigh, Status: StatusActive},
		&SecurityAlert{Location: "loc_a", Severity: 3},
	}

	a := NewDatasetHasher()
	b := NewDatasetHasher()
	for _, f := range facts {
		require.NoError(t, a.Add(f))
		require.NoError(t, b.Add(f))
	}
	assert.Equal(t, a.Sum(), b.Sum())
	assert.Equal(t, int64(2), a.Count())

	reversed := NewDatasetHasher()
	require.NoError(t, reversed.Add(facts[1]))
	require.NoError(t, reversed.Add(facts[0]))
	assert.NotEqual(t, a.Sum(), reversed.Sum(), "fingerprint is order dependent")
}
