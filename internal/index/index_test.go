package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_AddLookupRemove(t *testing.T) {
	ix := New[string, int]()

	assert.True(t, ix.Add("loc_a", 1))
	assert.True(t, ix.Add("loc_a", 2))
	assert.True(t, ix.Add("loc_b", 3))
	assert.False(t, ix.Add("loc_a", 1), "duplicate member is ignored")

	assert.ElementsMatch(t, []int{1, 2}, ix.Lookup("loc_a"))
	assert.Equal(t, 2, ix.Count("loc_a"))
	assert.Equal(t, 3, ix.Size())
	assert.Equal(t, 2, ix.Keys())
	assert.Empty(t, ix.Lookup("missing"))

	assert.True(t, ix.Remove("loc_a", 1))
	assert.False(t, ix.Remove("loc_a", 1))
	assert.Equal(t, []int{2}, ix.Lookup("loc_a"))

	assert.True(t, ix.Remove("loc_a", 2))
	assert.Equal(t, 1, ix.Keys(), "empty buckets are dropped")
	assert.Equal(t, 1, ix.Size())
}

func TestBucket_SwapRemoveKeepsPositions(t *testing.T) {
	b := NewBucket[int]()
	for i := range 5 {
		b.Add(i)
	}

	assert.True(t, b.Remove(1))
	assert.Equal(t, []int{0, 4, 2, 3}, b.Items())
	assert.True(t, b.Remove(4))
	assert.Equal(t, []int{0, 3, 2}, b.Items())
	for _, v := range []int{0, 2, 3} {
		assert.True(t, b.Contains(v))
	}
	assert.False(t, b.Contains(4))
}
