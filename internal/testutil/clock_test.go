package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewStepClock(start, 250*time.Millisecond)

	first := c.Now()
	second := c.Now()
	assert.Equal(t, start, first)
	assert.Equal(t, 250*time.Millisecond, second.Sub(first))

	c.Reset(start)
	assert.Equal(t, start, c.Now())
}
