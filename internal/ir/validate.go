package ir

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var factValidate *validator.Validate

func init() {
	factValidate = validator.New()
	factValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// Decimals are validated through their string form.
	factValidate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(apd.Decimal); ok {
			return d.String()
		}
		return nil
	}, apd.Decimal{})
	_ = factValidate.RegisterValidation("decimal_nonneg", validateDecimalNonNeg)
}

func validateDecimalNonNeg(fl validator.FieldLevel) bool {
	d, _, err := apd.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.Form == apd.Finite && !d.Negative
}

// ValidationError reports the first field of a fact that failed validation.
type ValidationError struct {
	Fact  string `json:"fact"`
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Value string `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: field %s failed %s (value %q)", e.Fact, e.Field, e.Rule, e.Value)
}

// Validate checks f against its field rules.
func Validate(f Fact) error {
	if f == nil || reflect.ValueOf(f).IsNil() {
		return errors.New("invalid fact: nil")
	}
	err := factValidate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{
			Fact:  f.FactType().String(),
			Field: fe.Field(),
			Rule:  fe.Tag(),
			Value: fmt.Sprint(fe.Value()),
		}
	}
	return fmt.Errorf("invalid %s: %w", f.FactType(), err)
}

// Prepare returns a normalized private copy of f, or a validation error.
// The copy is what enters the fact store; callers may reuse f afterwards.
func Prepare(f Fact) (Fact, error) {
	if err := Validate(f); err != nil {
		return nil, err
	}
	c := Clone(f)
	switch v := c.(type) {
	case *Transaction:
		v.Location = norm.NFC.String(v.Location)
	case *SecurityAlert:
		v.Location = norm.NFC.String(v.Location)
	}
	return c, nil
}
