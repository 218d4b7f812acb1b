package engine

import (
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

type opKind uint8

const (
	opInsert opKind = iota + 1
	opRetract
)

type batchOp struct {
	kind opKind
	fact ir.Fact
	id   ir.FactID
}

// Batch is an ordered list of insertions and retractions applied
// atomically: either every operation is accepted and propagated, or none
// is.
type Batch struct {
	ops []batchOp
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Insert appends an insertion.
func (b *Batch) Insert(f ir.Fact) *Batch {
	b.ops = append(b.ops, batchOp{kind: opInsert, fact: f})
	return b
}

// Retract appends a retraction.
func (b *Batch) Retract(id ir.FactID) *Batch {
	b.ops = append(b.ops, batchOp{kind: opRetract, id: id})
	return b
}

// Update appends the retraction of id followed by the insertion of f.
func (b *Batch) Update(id ir.FactID, f ir.Fact) *Batch {
	return b.Retract(id).Insert(f)
}

// Len returns the number of operations.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Receipt describes a committed batch.
type Receipt struct {
	// Seq is the batch sequence stamped by the evaluator clock.
	Seq int64
	// Inserted holds the identity of every inserted fact, in batch order.
	Inserted []ir.FactID
	// Retracted is the number of retractions.
	Retracted int
	// Snapshot is the state committed by this batch. Later batches do not
	// change it.
	Snapshot *score.Snapshot
}
