package network

import (
	"errors"
	"fmt"
)

// BuildErrorCode categorizes constraint definition errors.
type BuildErrorCode string

const (
	ErrCodeDuplicateConstraint BuildErrorCode = "DUPLICATE_CONSTRAINT"
	ErrCodeUnregisteredType    BuildErrorCode = "UNREGISTERED_TYPE"
	ErrCodeInvalidKey          BuildErrorCode = "INVALID_KEY"
	ErrCodeEmptyName           BuildErrorCode = "EMPTY_NAME"
	ErrCodeFrozen              BuildErrorCode = "NETWORK_FROZEN"
	ErrCodeInvalidParams       BuildErrorCode = "INVALID_PARAMS"
)

// BuildError is returned before any fact is processed.
type BuildError struct {
	Code       BuildErrorCode
	Constraint string
	Message    string
}

func (e *BuildError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("[%s] constraint %q: %s", e.Code, e.Constraint, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// FaultCode categorizes propagation invariant violations.
type FaultCode string

const (
	FaultUnknownMatch   FaultCode = "UNKNOWN_MATCH"
	FaultNegativeWeight FaultCode = "NEGATIVE_WEIGHT"
	FaultUnknownTuple   FaultCode = "UNKNOWN_TUPLE"
	FaultPanic          FaultCode = "RULE_PANIC"
)

// Fault is a propagation invariant violation. The network state is no
// longer trustworthy once a Fault is returned.
type Fault struct {
	Code       FaultCode
	Node       string
	Constraint string
	Tuple      string
	Message    string
}

func (e *Fault) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (constraint %q", e.Constraint)
		if e.Tuple != "" {
			msg += fmt.Sprintf(", tuple %s", e.Tuple)
		}
		msg += ")"
	}
	return msg
}

// IsBuildError reports whether err is a BuildError with the given code.
func IsBuildError(err error, code BuildErrorCode) bool {
	var be *BuildError
	return errors.As(err, &be) && be.Code == code
}

// IsFault reports whether err is a Fault with the given code.
func IsFault(err error, code FaultCode) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}
