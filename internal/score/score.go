// Package score holds the score accumulator mutated by penalize sinks.
//
// The accumulator is owned by one evaluator and changes only through Apply.
// Readers never see it directly: the evaluator publishes an immutable
// Snapshot at every quiescent point.
package score

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
)

// Delta is one match entering (Sign +1) or leaving (Sign -1) a constraint.
type Delta struct {
	Constraint string
	Sign       int
	Weight     *apd.Decimal
}

type entry struct {
	count        int64
	contribution apd.Decimal
}

// Accumulator tracks the total penalty and per-constraint totals.
type Accumulator struct {
	ctx     *apd.Context
	total   apd.Decimal
	entries map[string]*entry
	names   []string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		ctx:     ir.SumContext,
		entries: make(map[string]*entry),
	}
}

// Register adds a constraint so it is reported even with no matches.
func (a *Accumulator) Register(name string) error {
	if _, exists := a.entries[name]; exists {
		return fmt.Errorf("constraint %q already registered", name)
	}
	a.entries[name] = &entry{}
	i, _ := slices.BinarySearch(a.names, name)
	a.names = slices.Insert(a.names, i, name)
	return nil
}

// Apply adds or subtracts one match. Additions are exact, so weights
// should already be quantized with ir.QuantizeWeight.
func (a *Accumulator) Apply(d Delta) error {
	e, ok := a.entries[d.Constraint]
	if !ok {
		return fmt.Errorf("apply delta: unknown constraint %q", d.Constraint)
	}
	if d.Weight == nil {
		return fmt.Errorf("apply delta to %q: nil weight", d.Constraint)
	}

	var err error
	switch d.Sign {
	case 1:
		e.count++
		if _, err = a.ctx.Add(&e.contribution, &e.contribution, d.Weight); err == nil {
			_, err = a.ctx.Add(&a.total, &a.total, d.Weight)
		}
	case -1:
		if e.count == 0 {
			return fmt.Errorf("apply delta to %q: match count would go negative", d.Constraint)
		}
		e.count--
		if _, err = a.ctx.Sub(&e.contribution, &e.contribution, d.Weight); err == nil {
			_, err = a.ctx.Sub(&a.total, &a.total, d.Weight)
		}
	default:
		return fmt.Errorf("apply delta to %q: invalid sign %d", d.Constraint, d.Sign)
	}
	if err != nil {
		return fmt.Errorf("apply delta to %q: %w", d.Constraint, err)
	}
	return nil
}

// Snapshot copies the current state. seq identifies the batch that produced it.
func (a *Accumulator) Snapshot(seq int64) *Snapshot {
	s := &Snapshot{
		Seq:         seq,
		Constraints: make([]ConstraintTotal, len(a.names)),
	}
	s.Total.Set(&a.total)
	for i, name := range a.names {
		e := a.entries[name]
		s.Constraints[i].Name = name
		s.Constraints[i].Count = e.count
		s.Constraints[i].Contribution.Set(&e.contribution)
	}
	return s
}

// ConstraintTotal is one constraint's match count and total contribution.
type ConstraintTotal struct {
	Name         string
	Count        int64
	Contribution apd.Decimal
}

// Snapshot is an immutable view of the accumulator at a quiescent point.
// Constraints are sorted by name.
type Snapshot struct {
	Seq         int64
	Total       apd.Decimal
	Constraints []ConstraintTotal
	// Facts is the live fact count at Seq. The accumulator does not track
	// facts; the owner of the fact set fills it in.
	Facts int
}

// Empty returns the snapshot of an accumulator with the given constraints
// and no matches.
func Empty(names ...string) *Snapshot {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	s := &Snapshot{Constraints: make([]ConstraintTotal, len(sorted))}
	for i, n := range sorted {
		s.Constraints[i].Name = n
	}
	return s
}

// Constraint returns the totals for name.
func (s *Snapshot) Constraint(name string) (ConstraintTotal, bool) {
	i, ok := slices.BinarySearchFunc(s.Constraints, name, func(c ConstraintTotal, n string) int {
		return strings.Compare(c.Name, n)
	})
	if !ok {
		return ConstraintTotal{}, false
	}
	return s.Constraints[i], true
}

// MatchTotal returns the number of live matches across all constraints.
func (s *Snapshot) MatchTotal() int64 {
	var n int64
	for _, c := range s.Constraints {
		n += c.Count
	}
	return n
}

// Object returns the canonical map form used for JSON output and goldens.
func (s *Snapshot) Object() map[string]any {
	constraints := make([]any, len(s.Constraints))
	for i := range s.Constraints {
		c := &s.Constraints[i]
		constraints[i] = map[string]any{
			"name":         c.Name,
			"count":        c.Count,
			"contribution": ir.FormatDecimal(&c.Contribution),
		}
	}
	return map[string]any{
		"score":       ir.FormatDecimal(&s.Total),
		"constraints": constraints,
	}
}
