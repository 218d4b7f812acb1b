package ir

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// DecimalContext is the arithmetic context for amounts and weight
// computations.
var DecimalContext = apd.BaseContext.WithPrecision(34)

// SumContext adds and subtracts without rounding. Scores and contributions
// are sums of quantized weights, so every step is exact and the result does
// not depend on the order of the deltas.
var SumContext = apd.BaseContext.WithPrecision(0)

// WeightExponent is the scale every penalty weight is rounded to before it
// is accumulated: ten fractional digits.
const WeightExponent = -10

// QuantizeWeight rounds w in place to WeightExponent, half up.
func QuantizeWeight(w *apd.Decimal) error {
	if _, err := DecimalContext.Quantize(w, w, WeightExponent); err != nil {
		return fmt.Errorf("quantize weight %s: %w", w.Text('f'), err)
	}
	return nil
}

// ParseDecimal parses a finite decimal string.
func ParseDecimal(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("parse decimal %q: not finite", s)
	}
	return d, nil
}

// MustDecimal is ParseDecimal for constants and tests.
func MustDecimal(s string) *apd.Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FormatDecimal renders d in plain notation with trailing zeros removed,
// so 5E+1 and 50.00 both render as "50".
func FormatDecimal(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	var r apd.Decimal
	r.Reduce(d)
	if r.IsZero() {
		return "0"
	}
	return r.Text('f')
}
