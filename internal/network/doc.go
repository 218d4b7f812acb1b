// Package network implements the incremental matching network.
//
// Facts enter through one source node per fact type and flow as tuple
// deltas through filter, join, group, negation and exists nodes into the
// penalize sink of each constraint. Every node keeps just enough memory to
// turn an input delta into exact output deltas, so an insertion or
// retraction costs time proportional to the tuples it affects.
//
// Propagation is single-threaded. Fact store mutations are queued at the
// sources and pushed depth-first by Flush; group nodes defer their output
// until the sources drain, so each dirty group emits once per flush.
//
// Constraints are declared with a Provider:
//
//	func(f *network.Factory) []*network.Constraint {
//		return []*network.Constraint{
//			f.ForEach(ir.TypeTransaction).
//				Filter(func(t *network.Tuple) bool { return t.Transaction(0).Amount.Sign() > 0 }).
//				Penalize(network.ConstantWeight(ir.MustDecimal("1"))).
//				AsConstraint("any_payment"),
//		}
//	}
package network
