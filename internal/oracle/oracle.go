// Package oracle recomputes the standard catalog's results from scratch
// with a Datalog program, independently of the incremental network.
//
// Joins, negation and the per-customer count run in Mangle. Amount
// thresholds and decimal weights stay in Go, where they use the same
// arithmetic context as the engine.
package oracle

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/roach88/greynet/internal/constraints"
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

const program = `
Decl customer(Id, Risk, Status).
Decl transaction(Id, CustomerId, Location).
Decl alert(Handle, Location, Severity).
Decl over_threshold(Id).

high_value(T) :- over_threshold(T).

tx_per_customer(C, N) :-
    transaction(_, C, _) |>
    do fn:group_by(C),
    let N = fn:count().

alerted_pair(T, A, S) :- transaction(T, _, L), alert(A, L, S).

inactive_pair(C, T) :- customer(C, _, /inactive), transaction(T, C, _).

alerted_location(L) :- alert(_, L, _).

high_risk_unalerted(C, T) :-
    customer(C, /high, _),
    transaction(T, C, L),
    !alerted_location(L).
`

var compiled *analysis.ProgramInfo

func init() {
	unit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		panic(fmt.Sprintf("oracle: parse program: %v", err))
	}
	compiled, err = analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		panic(fmt.Sprintf("oracle: analyze program: %v", err))
	}
}

func name(s string) ast.Constant {
	c, err := ast.Name("/" + s)
	if err != nil {
		panic(err)
	}
	return c
}

// Recompute evaluates the enabled constraints of p over facts and returns
// the totals the engine should report for the same live fact set.
func Recompute(p constraints.Params, facts []ir.Fact) (*score.Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	store := factstore.NewSimpleInMemoryStore()
	amounts := make(map[int64]*apd.Decimal)
	threshold := apd.New(p.HighValue.Threshold, 0)

	var handle int64
	for i, raw := range facts {
		f, err := ir.Prepare(raw)
		if err != nil {
			return nil, fmt.Errorf("oracle: fact %d: %w", i, err)
		}
		switch v := f.(type) {
		case *ir.Customer:
			store.Add(ast.NewAtom("customer",
				ast.Number(v.ID), name(string(v.RiskLevel)), name(string(v.Status))))
		case *ir.Transaction:
			store.Add(ast.NewAtom("transaction",
				ast.Number(v.ID), ast.Number(v.CustomerID), ast.String(v.Location)))
			amounts[v.ID] = &v.Amount
			if v.Amount.Cmp(threshold) > 0 {
				store.Add(ast.NewAtom("over_threshold", ast.Number(v.ID)))
			}
		case *ir.SecurityAlert:
			handle++
			store.Add(ast.NewAtom("alert",
				ast.Number(handle), ast.String(v.Location), ast.Number(v.Severity)))
		}
	}

	if _, err := engine.EvalProgramWithStats(compiled, store); err != nil {
		return nil, fmt.Errorf("oracle: evaluate: %w", err)
	}

	r := &recomputer{store: store, amounts: amounts}
	totals := make(map[string]*score.ConstraintTotal)
	if p.HighValue.Enabled {
		totals[constraints.HighValueTransaction] = r.highValue(p.HighValue)
	}
	if p.Excessive.Enabled {
		totals[constraints.ExcessiveTransactions] = r.excessive(p.Excessive)
	}
	if p.AlertedLocation.Enabled {
		totals[constraints.AlertedLocation] = r.alerted(p.AlertedLocation)
	}
	if p.Inactive.Enabled {
		totals[constraints.InactiveCustomer] = r.constant("inactive_pair", 2, p.Inactive.Penalty)
	}
	if p.HighRisk.Enabled {
		totals[constraints.HighRiskWithoutAlert] = r.constant("high_risk_unalerted", 2, p.HighRisk.Penalty)
	}
	if r.err != nil {
		return nil, fmt.Errorf("oracle: %w", r.err)
	}

	names := make([]string, 0, len(totals))
	for n := range totals {
		names = append(names, n)
	}
	slices.Sort(names)
	snap := &score.Snapshot{Constraints: make([]score.ConstraintTotal, len(names)), Facts: len(facts)}
	for i, n := range names {
		t := totals[n]
		t.Name = n
		snap.Constraints[i] = *t
		if _, err := ir.SumContext.Add(&snap.Total, &snap.Total, &t.Contribution); err != nil {
			return nil, fmt.Errorf("oracle: total: %w", err)
		}
	}
	return snap, nil
}

type recomputer struct {
	store   factstore.FactStore
	amounts map[int64]*apd.Decimal
	err     error
}

// each calls fn with the numeric arguments of every derived pred/arity atom.
func (r *recomputer) each(pred string, arity int, fn func(args []int64)) {
	if r.err != nil {
		return
	}
	sym := ast.PredicateSym{Symbol: pred, Arity: arity}
	r.err = r.store.GetFacts(ast.NewQuery(sym), func(a ast.Atom) error {
		args := make([]int64, len(a.Args))
		for i, t := range a.Args {
			c, ok := t.(ast.Constant)
			if !ok || c.Type != ast.NumberType {
				return fmt.Errorf("%s: argument %d is not a number: %v", pred, i, t)
			}
			args[i] = c.NumValue
		}
		fn(args)
		return nil
	})
}

func (r *recomputer) add(t *score.ConstraintTotal, w *apd.Decimal) {
	t.Count++
	q := new(apd.Decimal).Set(w)
	if err := ir.QuantizeWeight(q); err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}
	if _, err := ir.SumContext.Add(&t.Contribution, &t.Contribution, q); err != nil && r.err == nil {
		r.err = err
	}
}

func (r *recomputer) highValue(p constraints.HighValueParams) *score.ConstraintTotal {
	t := &score.ConstraintTotal{}
	divisor := apd.New(p.Divisor, 0)
	r.each("high_value", 1, func(args []int64) {
		var w apd.Decimal
		if _, err := ir.DecimalContext.Quo(&w, r.amounts[args[0]], divisor); err != nil {
			if r.err == nil {
				r.err = err
			}
			return
		}
		r.add(t, &w)
	})
	return t
}

func (r *recomputer) excessive(p constraints.ExcessiveParams) *score.ConstraintTotal {
	t := &score.ConstraintTotal{}
	r.each("tx_per_customer", 2, func(args []int64) {
		if n := args[1]; n > p.Limit {
			r.add(t, apd.New((n-p.Limit)*p.PenaltyPerExtra, 0))
		}
	})
	return t
}

func (r *recomputer) alerted(p constraints.AlertedLocationParams) *score.ConstraintTotal {
	t := &score.ConstraintTotal{}
	r.each("alerted_pair", 3, func(args []int64) {
		r.add(t, apd.New(p.PenaltyPerSeverity*args[2], 0))
	})
	return t
}

func (r *recomputer) constant(pred string, arity int, penalty int64) *score.ConstraintTotal {
	t := &score.ConstraintTotal{}
	w := apd.New(penalty, 0)
	r.each(pred, arity, func([]int64) { r.add(t, w) })
	return t
}
