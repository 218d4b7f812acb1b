// Package constraints is the standard fraud-scoring constraint catalog.
package constraints

import (
	"slices"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/network"
)

// Constraint names.
const (
	HighValueTransaction  = "high_value_transaction"
	ExcessiveTransactions = "excessive_transactions_per_customer"
	AlertedLocation       = "transaction_in_alerted_location"
	InactiveCustomer      = "inactive_customer_transaction"
	HighRiskWithoutAlert  = "high_risk_transaction_without_alert"
)

// Names returns every catalog constraint name in sorted order.
func Names() []string {
	names := []string{
		HighValueTransaction,
		ExcessiveTransactions,
		AlertedLocation,
		InactiveCustomer,
		HighRiskWithoutAlert,
	}
	slices.Sort(names)
	return names
}

// Provider returns the enabled catalog constraints tuned by p. p is
// copied; later changes to the caller's value have no effect. An enabled
// constraint whose tuning is out of range fails the build with
// INVALID_PARAMS.
func Provider(p Params) network.Provider {
	return func(f *network.Factory) []*network.Constraint {
		var cs []*network.Constraint
		add := func(enabled bool, name string, err error, build func() *network.Constraint) {
			switch {
			case !enabled:
			case err != nil:
				cs = append(cs, f.Reject(name, err))
			default:
				cs = append(cs, build())
			}
		}
		add(p.HighValue.Enabled, HighValueTransaction, p.HighValue.validate(),
			func() *network.Constraint { return highValue(f, p.HighValue) })
		add(p.Excessive.Enabled, ExcessiveTransactions, p.Excessive.validate(),
			func() *network.Constraint { return excessive(f, p.Excessive) })
		add(p.AlertedLocation.Enabled, AlertedLocation, p.AlertedLocation.validate(),
			func() *network.Constraint { return alertedLocation(f, p.AlertedLocation) })
		add(p.Inactive.Enabled, InactiveCustomer, p.Inactive.validate(),
			func() *network.Constraint { return inactive(f, p.Inactive) })
		add(p.HighRisk.Enabled, HighRiskWithoutAlert, p.HighRisk.validate(),
			func() *network.Constraint { return highRisk(f, p.HighRisk) })
		return cs
	}
}

func customerID(t *network.Tuple) any    { return t.Customer(0).ID }
func txCustomerID(t *network.Tuple) any  { return t.Transaction(t.Arity() - 1).CustomerID }
func txLocation(t *network.Tuple) any    { return t.Transaction(t.Arity() - 1).Location }
func alertLocation(t *network.Tuple) any { return t.Alert(0).Location }

func highValue(f *network.Factory, p HighValueParams) *network.Constraint {
	threshold := apd.New(p.Threshold, 0)
	divisor := apd.New(p.Divisor, 0)
	return f.ForEach(ir.TypeTransaction).
		Filter(func(t *network.Tuple) bool {
			return t.Transaction(0).Amount.Cmp(threshold) > 0
		}).
		Penalize(func(t *network.Tuple) *apd.Decimal {
			var w apd.Decimal
			if _, err := ir.DecimalContext.Quo(&w, &t.Transaction(0).Amount, divisor); err != nil {
				return nil
			}
			return &w
		}).
		AsConstraint(HighValueTransaction)
}

func excessive(f *network.Factory, p ExcessiveParams) *network.Constraint {
	limit := apd.New(p.Limit, 0)
	perExtra := apd.New(p.PenaltyPerExtra, 0)
	return f.ForEach(ir.TypeTransaction).
		GroupBy(txCustomerID, network.Count()).
		Filter(func(t *network.Tuple) bool {
			return t.Value().Cmp(limit) > 0
		}).
		Penalize(func(t *network.Tuple) *apd.Decimal {
			var w apd.Decimal
			if _, err := ir.DecimalContext.Sub(&w, t.Value(), limit); err != nil {
				return nil
			}
			if _, err := ir.DecimalContext.Mul(&w, &w, perExtra); err != nil {
				return nil
			}
			return &w
		}).
		AsConstraint(ExcessiveTransactions)
}

func alertedLocation(f *network.Factory, p AlertedLocationParams) *network.Constraint {
	return f.ForEach(ir.TypeTransaction).
		Join(ir.TypeSecurityAlert, network.Equal(txLocation, alertLocation)).
		Penalize(func(t *network.Tuple) *apd.Decimal {
			return apd.New(p.PenaltyPerSeverity*t.Alert(1).Severity, 0)
		}).
		AsConstraint(AlertedLocation)
}

func inactive(f *network.Factory, p InactiveParams) *network.Constraint {
	return f.ForEach(ir.TypeCustomer).
		Filter(func(t *network.Tuple) bool { return t.Customer(0).Status == ir.StatusInactive }).
		Join(ir.TypeTransaction, network.Equal(customerID, txCustomerID)).
		Penalize(network.ConstantWeight(apd.New(p.Penalty, 0))).
		AsConstraint(InactiveCustomer)
}

func highRisk(f *network.Factory, p HighRiskParams) *network.Constraint {
	return f.ForEach(ir.TypeCustomer).
		Filter(func(t *network.Tuple) bool { return t.Customer(0).RiskLevel == ir.RiskHigh }).
		Join(ir.TypeTransaction, network.Equal(customerID, txCustomerID)).
		IfNotExists(ir.TypeSecurityAlert, network.Equal(txLocation, alertLocation)).
		Penalize(network.ConstantWeight(apd.New(p.Penalty, 0))).
		AsConstraint(HighRiskWithoutAlert)
}
