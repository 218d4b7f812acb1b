package network

import "github.com/roach88/greynet/internal/ir"

type pendingFact struct {
	op        op
	id        ir.FactID
	fact      ir.Fact
	cancelled bool
}

// sourceNode turns fact store mutations of one type into single-fact tuple
// deltas. Mutations are queued until flush; an insertion retracted before
// the flush cancels out and never reaches the network.
type sourceNode struct {
	base
	typ     ir.FactType
	tuples  map[ir.FactID]*Tuple
	pending []pendingFact
	// queuedInsert maps a fact to its queued, uncancelled insertion.
	queuedInsert map[ir.FactID]int
}

func newSourceNode(id int, t ir.FactType) *sourceNode {
	return &sourceNode{
		base:         base{id: id, kind: KindSource},
		typ:          t,
		tuples:       make(map[ir.FactID]*Tuple),
		queuedInsert: make(map[ir.FactID]int),
	}
}

func (s *sourceNode) enqueueInsert(id ir.FactID, f ir.Fact) {
	s.queuedInsert[id] = len(s.pending)
	s.pending = append(s.pending, pendingFact{op: opInsert, id: id, fact: f})
}

func (s *sourceNode) enqueueRetract(id ir.FactID) {
	if i, ok := s.queuedInsert[id]; ok {
		s.pending[i].cancelled = true
		delete(s.queuedInsert, id)
		return
	}
	s.pending = append(s.pending, pendingFact{op: opRetract, id: id})
}

func (s *sourceNode) flush() error {
	defer s.discard()
	for i := range s.pending {
		p := &s.pending[i]
		if p.cancelled {
			continue
		}
		switch p.op {
		case opInsert:
			t := factTuple(p.id, p.fact)
			s.tuples[p.id] = t
			if err := s.emit(opInsert, t); err != nil {
				return err
			}
		case opRetract:
			t, ok := s.tuples[p.id]
			if !ok {
				return &Fault{Code: FaultUnknownTuple, Node: s.Name(), Tuple: p.id.String(),
					Message: "retraction of a fact the network never saw"}
			}
			delete(s.tuples, p.id)
			if err := s.emit(opRetract, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *sourceNode) discard() {
	clear(s.pending)
	s.pending = s.pending[:0]
	clear(s.queuedInsert)
}

// receive is never called on a source; sources are fed by the fact store.
func (s *sourceNode) receive(side, op, *Tuple) error { return nil }

func (s *sourceNode) size() int { return len(s.tuples) }
