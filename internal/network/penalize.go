package network

import (
	"slices"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// WeightFunc computes the non-negative penalty of a match.
type WeightFunc func(t *Tuple) *apd.Decimal

// ConstantWeight penalizes every match by w.
func ConstantWeight(w *apd.Decimal) WeightFunc {
	fixed := new(apd.Decimal).Set(w)
	return func(*Tuple) *apd.Decimal { return fixed }
}

// Match is a live tuple at a penalize sink together with its stored weight.
type Match struct {
	Constraint string
	Tuple      *Tuple
	Weight     apd.Decimal
}

// penalizeNode is the sink of a constraint. The weight computed at
// insertion is quantized, stored and subtracted verbatim on retraction, so
// the accumulator stays exact even if the weight function is not pure.
type penalizeNode struct {
	base
	weight  WeightFunc
	acc     *score.Accumulator
	matches map[*Tuple]*apd.Decimal
}

func (p *penalizeNode) receive(_ side, o op, t *Tuple) error {
	if o == opInsert {
		w := p.weight(t)
		switch {
		case w == nil:
			return &Fault{Code: FaultNegativeWeight, Node: p.Name(), Constraint: p.constraint, Tuple: t.Key(),
				Message: "weight function returned no weight"}
		case w.Form != apd.Finite || w.Negative && !w.IsZero():
			return &Fault{Code: FaultNegativeWeight, Node: p.Name(), Constraint: p.constraint, Tuple: t.Key(),
				Message: "weight function returned a negative or non-finite weight: " + w.String()}
		}
		stored := new(apd.Decimal).Set(w)
		if err := ir.QuantizeWeight(stored); err != nil {
			return &Fault{Code: FaultNegativeWeight, Node: p.Name(), Constraint: p.constraint, Tuple: t.Key(),
				Message: "weight is out of range: " + err.Error()}
		}
		if err := p.acc.Apply(score.Delta{Constraint: p.constraint, Sign: 1, Weight: stored}); err != nil {
			return err
		}
		p.matches[t] = stored
		return nil
	}

	stored, ok := p.matches[t]
	if !ok {
		return &Fault{Code: FaultUnknownMatch, Node: p.Name(), Constraint: p.constraint, Tuple: t.Key(),
			Message: "retraction of a tuple with no recorded match"}
	}
	delete(p.matches, t)
	return p.acc.Apply(score.Delta{Constraint: p.constraint, Sign: -1, Weight: stored})
}

func (p *penalizeNode) size() int { return len(p.matches) }

func (p *penalizeNode) snapshot() []Match {
	out := make([]Match, 0, len(p.matches))
	for t, w := range p.matches {
		m := Match{Constraint: p.constraint, Tuple: t}
		m.Weight.Set(w)
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Match) int { return compareTuples(a.Tuple, b.Tuple) })
	return out
}
