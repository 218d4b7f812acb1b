// Package engine implements the greynet evaluator.
//
// The evaluator wraps a fact store and a constraint network. Every
// mutation is a batch: the batch is validated as a whole against the live
// fact set, applied to the store, and propagated through the network to
// quiescence before the call returns. Only then is a new score snapshot
// published.
//
// Single writer:
// Mutations are serialized. Callers either own the evaluator on one
// goroutine or hand batches to Submit, which queues them for the Run loop.
// Readers use Snapshot, which is published atomically and never observes a
// half-propagated batch.
//
// Failure model:
// Boundary errors reject a batch without side effects. A propagation fault
// means node memories and the accumulator may disagree, so the evaluator
// refuses further mutation while the last committed snapshot stays
// readable.
package engine
