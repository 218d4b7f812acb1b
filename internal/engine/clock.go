package engine

import "sync/atomic"

// Clock is the monotonic batch sequence. Every committed batch is stamped
// with the next value, and snapshots carry the sequence they were
// published at. Rejected batches do not advance the clock.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
