package constraints

import (
	"errors"
	"fmt"
)

// Params tunes the standard constraint catalog. Monetary thresholds and
// weights are whole numbers; fractional weights arise only from division.
type Params struct {
	HighValue       HighValueParams       `json:"high_value_transaction"`
	Excessive       ExcessiveParams       `json:"excessive_transactions_per_customer"`
	AlertedLocation AlertedLocationParams `json:"transaction_in_alerted_location"`
	Inactive        InactiveParams        `json:"inactive_customer_transaction"`
	HighRisk        HighRiskParams        `json:"high_risk_transaction_without_alert"`
}

// HighValueParams penalizes transactions above Threshold by amount/Divisor.
type HighValueParams struct {
	Enabled   bool  `json:"enabled"`
	Threshold int64 `json:"threshold"`
	Divisor   int64 `json:"divisor"`
}

// ExcessiveParams penalizes customers with more than Limit transactions by
// PenaltyPerExtra for each transaction over the limit.
type ExcessiveParams struct {
	Enabled         bool  `json:"enabled"`
	Limit           int64 `json:"limit"`
	PenaltyPerExtra int64 `json:"penalty_per_extra"`
}

// AlertedLocationParams penalizes each (transaction, alert) pair sharing a
// location by PenaltyPerSeverity times the alert severity.
type AlertedLocationParams struct {
	Enabled            bool  `json:"enabled"`
	PenaltyPerSeverity int64 `json:"penalty_per_severity"`
}

// InactiveParams penalizes each transaction of an inactive customer.
type InactiveParams struct {
	Enabled bool  `json:"enabled"`
	Penalty int64 `json:"penalty"`
}

// HighRiskParams penalizes each transaction of a high-risk customer at a
// location without any security alert.
type HighRiskParams struct {
	Enabled bool  `json:"enabled"`
	Penalty int64 `json:"penalty"`
}

// DefaultParams returns the reference tuning.
func DefaultParams() Params {
	return Params{
		HighValue:       HighValueParams{Enabled: true, Threshold: 45000, Divisor: 1000},
		Excessive:       ExcessiveParams{Enabled: true, Limit: 25, PenaltyPerExtra: 10},
		AlertedLocation: AlertedLocationParams{Enabled: true, PenaltyPerSeverity: 100},
		Inactive:        InactiveParams{Enabled: true, Penalty: 500},
		HighRisk:        HighRiskParams{Enabled: true, Penalty: 1000},
	}
}

// Validate checks the ranges the pipelines rely on.
func (p Params) Validate() error {
	return errors.Join(
		p.HighValue.validate(),
		p.Excessive.validate(),
		p.AlertedLocation.validate(),
		p.Inactive.validate(),
		p.HighRisk.validate(),
	)
}

type rangeCheck []error

func (c *rangeCheck) check(ok bool, format string, args ...any) {
	if !ok {
		*c = append(*c, fmt.Errorf(format, args...))
	}
}

func (p HighValueParams) validate() error {
	var c rangeCheck
	c.check(p.Threshold >= 0, "%s.threshold must be >= 0, got %d", HighValueTransaction, p.Threshold)
	c.check(p.Divisor > 0, "%s.divisor must be > 0, got %d", HighValueTransaction, p.Divisor)
	return errors.Join(c...)
}

func (p ExcessiveParams) validate() error {
	var c rangeCheck
	c.check(p.Limit >= 0, "%s.limit must be >= 0, got %d", ExcessiveTransactions, p.Limit)
	c.check(p.PenaltyPerExtra >= 0, "%s.penalty_per_extra must be >= 0, got %d", ExcessiveTransactions, p.PenaltyPerExtra)
	return errors.Join(c...)
}

func (p AlertedLocationParams) validate() error {
	var c rangeCheck
	c.check(p.PenaltyPerSeverity >= 0, "%s.penalty_per_severity must be >= 0, got %d", AlertedLocation, p.PenaltyPerSeverity)
	return errors.Join(c...)
}

func (p InactiveParams) validate() error {
	var c rangeCheck
	c.check(p.Penalty >= 0, "%s.penalty must be >= 0, got %d", InactiveCustomer, p.Penalty)
	return errors.Join(c...)
}

func (p HighRiskParams) validate() error {
	var c rangeCheck
	c.check(p.Penalty >= 0, "%s.penalty must be >= 0, got %d", HighRiskWithoutAlert, p.Penalty)
	return errors.Join(c...)
}

// Enabled returns the names of the enabled constraints in sorted order.
func (p Params) Enabled() []string {
	var names []string
	for _, name := range Names() {
		if p.enabled(name) {
			names = append(names, name)
		}
	}
	return names
}

func (p Params) enabled(name string) bool {
	switch name {
	case HighValueTransaction:
		return p.HighValue.Enabled
	case ExcessiveTransactions:
		return p.Excessive.Enabled
	case AlertedLocation:
		return p.AlertedLocation.Enabled
	case InactiveCustomer:
		return p.Inactive.Enabled
	case HighRiskWithoutAlert:
		return p.HighRisk.Enabled
	}
	return false
}

// Object renders the params as a canonical object for fingerprinting and
// run records.
func (p Params) Object() map[string]any {
	return map[string]any{
		HighValueTransaction: map[string]any{
			"enabled": p.HighValue.Enabled, "threshold": p.HighValue.Threshold, "divisor": p.HighValue.Divisor,
		},
		ExcessiveTransactions: map[string]any{
			"enabled": p.Excessive.Enabled, "limit": p.Excessive.Limit, "penalty_per_extra": p.Excessive.PenaltyPerExtra,
		},
		AlertedLocation: map[string]any{
			"enabled": p.AlertedLocation.Enabled, "penalty_per_severity": p.AlertedLocation.PenaltyPerSeverity,
		},
		InactiveCustomer: map[string]any{
			"enabled": p.Inactive.Enabled, "penalty": p.Inactive.Penalty,
		},
		HighRiskWithoutAlert: map[string]any{
			"enabled": p.HighRisk.Enabled, "penalty": p.HighRisk.Penalty,
		},
	}
}
