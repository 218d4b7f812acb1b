package store

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
)

// marshalDecimal renders d as plain-notation TEXT for storage.
func marshalDecimal(d *apd.Decimal) string {
	return ir.FormatDecimal(d)
}

// unmarshalDecimal parses a stored decimal into dst.
func unmarshalDecimal(s string, dst *apd.Decimal) error {
	d, err := ir.ParseDecimal(s)
	if err != nil {
		return fmt.Errorf("unmarshal decimal: %w", err)
	}
	dst.Set(d)
	return nil
}

// marshalParams converts a parameter object to canonical JSON TEXT.
// Uses RFC 8785 canonical JSON so equal params always store identically.
func marshalParams(obj map[string]any) (string, error) {
	if obj == nil {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}
