package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/greynet/internal/compiler"
	"github.com/roach88/greynet/internal/constraints"
	"github.com/roach88/greynet/internal/engine"
	"github.com/roach88/greynet/internal/ir"
)

// Harness executes one scenario against a fresh evaluator.
type Harness struct {
	eval   *engine.Evaluator
	refs   map[string]ir.FactID
	logger *slog.Logger
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the harness logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a new evaluator built from the scenario's
// params. Every step is applied as one batch; after it, the step's expect
// clause is checked against the committed snapshot. Expectation failures
// are collected in the result. An error is returned only when the
// scenario cannot be executed at all.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	params, err := compiler.LoadParams(scenario.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}

	h := &Harness{
		refs:   make(map[string]ir.FactID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.eval, err = engine.New(constraints.Provider(params), engine.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluator: %w", err)
	}

	ctx := context.Background()
	result := NewResult()
	for i := range scenario.Steps {
		h.executeStep(ctx, i, &scenario.Steps[i], result)
	}
	return result, nil
}

// executeStep applies one step and checks its expectations.
func (h *Harness) executeStep(ctx context.Context, i int, st *Step, result *Result) {
	label := stepLabel(i, st)
	ts := TraceStep{Step: i + 1, Name: st.Name, Op: st.Op(), Facts: []string{}}

	batch, newRefs, err := h.buildBatch(st)
	if err != nil {
		result.AddError(fmt.Sprintf("%s: %v", label, err))
		result.Trace = append(result.Trace, ts)
		return
	}

	receipt, applyErr := h.eval.Apply(ctx, batch)
	if applyErr != nil {
		ts.Error = string(engine.CodeOf(applyErr))
		for _, target := range st.Retract {
			ts.Facts = append(ts.Facts, h.display(target))
		}
	} else {
		ts.Facts = h.touched(st, receipt)
		for j, ref := range newRefs {
			if ref != "" {
				h.refs[ref] = receipt.Inserted[j]
			}
		}
	}
	ts.Snapshot = h.eval.Snapshot()
	result.Trace = append(result.Trace, ts)

	h.logger.Info("scenario step applied",
		"step", i+1,
		"op", ts.Op,
		"facts", len(ts.Facts),
		"error", ts.Error,
	)

	var exp Expect
	if st.Expect != nil {
		exp = *st.Expect
	}
	for _, msg := range checkExpect(h.eval, &exp, applyErr) {
		result.AddError(fmt.Sprintf("%s: %s", label, msg))
	}
}

// buildBatch converts a step into a batch. newRefs holds, for each
// insertion in batch order, the ref it binds or "".
func (h *Harness) buildBatch(st *Step) (*engine.Batch, []string, error) {
	b := engine.NewBatch()
	var newRefs []string

	switch st.Op() {
	case OpInsert:
		for _, c := range st.Insert.Customers {
			b.Insert(c.fact())
			newRefs = append(newRefs, c.Ref)
		}
		for _, t := range st.Insert.Transactions {
			f, err := t.fact()
			if err != nil {
				return nil, nil, err
			}
			b.Insert(f)
			newRefs = append(newRefs, t.Ref)
		}
		for _, a := range st.Insert.Alerts {
			b.Insert(a.fact())
			newRefs = append(newRefs, a.Ref)
		}
	case OpRetract:
		for _, target := range st.Retract {
			id, err := h.resolve(target)
			if err != nil {
				return nil, nil, err
			}
			b.Retract(id)
		}
	case OpUpdate:
		for _, u := range st.Update {
			id, err := h.resolve(u.Target)
			if err != nil {
				return nil, nil, err
			}
			f, ref, err := u.fact()
			if err != nil {
				return nil, nil, err
			}
			b.Update(id, f)
			newRefs = append(newRefs, ref)
		}
	}
	return b, newRefs, nil
}

// resolve turns a fact id or @ref into a fact id.
func (h *Harness) resolve(target string) (ir.FactID, error) {
	if ref, ok := strings.CutPrefix(target, "@"); ok {
		id, bound := h.refs[ref]
		if !bound {
			return ir.FactID{}, fmt.Errorf("ref %q is not bound to a live fact", ref)
		}
		return id, nil
	}
	return ir.ParseFactID(target)
}

// display renders a target for the trace, resolving refs when possible.
func (h *Harness) display(target string) string {
	if id, err := h.resolve(target); err == nil {
		return id.String()
	}
	return target
}

// touched lists the ids a committed step retracted and inserted.
func (h *Harness) touched(st *Step, r engine.Receipt) []string {
	var out []string
	switch st.Op() {
	case OpRetract:
		for _, target := range st.Retract {
			out = append(out, h.display(target))
		}
	case OpUpdate:
		for j, u := range st.Update {
			out = append(out, h.display(u.Target)+" -> "+r.Inserted[j].String())
		}
		return out
	}
	for _, id := range r.Inserted {
		out = append(out, id.String())
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func stepLabel(i int, st *Step) string {
	if st.Name != "" {
		return fmt.Sprintf("step %d (%s)", i+1, st.Name)
	}
	return fmt.Sprintf("step %d", i+1)
}

func (c CustomerSpec) fact() *ir.Customer {
	return &ir.Customer{ID: c.ID, RiskLevel: ir.RiskLevel(c.RiskLevel), Status: ir.Status(c.Status)}
}

func (t TransactionSpec) fact() (*ir.Transaction, error) {
	amount, err := ir.ParseDecimal(t.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
	}
	f := &ir.Transaction{ID: t.ID, CustomerID: t.CustomerID, Location: t.Location}
	f.Amount.Set(amount)
	return f, nil
}

func (a AlertSpec) fact() *ir.SecurityAlert {
	return &ir.SecurityAlert{Location: a.Location, Severity: a.Severity}
}

func (u *UpdateSpec) fact() (ir.Fact, string, error) {
	switch {
	case u.Customer != nil:
		return u.Customer.fact(), u.Customer.Ref, nil
	case u.Transaction != nil:
		f, err := u.Transaction.fact()
		return f, u.Transaction.Ref, err
	default:
		return u.Alert.fact(), u.Alert.Ref, nil
	}
}
