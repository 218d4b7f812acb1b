package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/greynet/internal/network"
)

// RuntimeError is returned by the evaluator's mutation operations.
//
// Boundary errors (INVALID_FACT, DUPLICATE_FACT, UNKNOWN_FACT,
// BATCH_TOO_LARGE) are detected before any node sees the batch and leave
// the evaluator usable. Propagation faults (UNKNOWN_MATCH, NEGATIVE_WEIGHT,
// UNKNOWN_TUPLE, RULE_PANIC) poison it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// FactID identifies the offending fact, when there is one.
	FactID string

	// Constraint identifies the constraint whose node faulted.
	Constraint string

	// Details contains additional context such as the batch position.
	Details map[string]string

	err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeInvalidFact      RuntimeErrorCode = "INVALID_FACT"
	ErrCodeDuplicateFact    RuntimeErrorCode = "DUPLICATE_FACT"
	ErrCodeUnknownFact      RuntimeErrorCode = "UNKNOWN_FACT"
	ErrCodeBatchTooLarge    RuntimeErrorCode = "BATCH_TOO_LARGE"
	ErrCodeEvaluatorFailed  RuntimeErrorCode = "EVALUATOR_FAILED"
	ErrCodeEvaluatorStopped RuntimeErrorCode = "EVALUATOR_STOPPED"

	ErrCodeUnknownMatch   = RuntimeErrorCode(network.FaultUnknownMatch)
	ErrCodeNegativeWeight = RuntimeErrorCode(network.FaultNegativeWeight)
	ErrCodeUnknownTuple   = RuntimeErrorCode(network.FaultUnknownTuple)
	ErrCodeRulePanic      = RuntimeErrorCode(network.FaultPanic)
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.FactID != "" && e.Constraint != "":
		return fmt.Sprintf("%s: %s (fact=%s, constraint=%s)", e.Code, e.Message, e.FactID, e.Constraint)
	case e.FactID != "":
		return fmt.Sprintf("%s: %s (fact=%s)", e.Code, e.Message, e.FactID)
	case e.Constraint != "":
		return fmt.Sprintf("%s: %s (constraint=%s)", e.Code, e.Message, e.Constraint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *RuntimeError) Unwrap() error { return e.err }

// Fatal reports whether the error poisoned the evaluator.
func (e *RuntimeError) Fatal() bool {
	switch e.Code {
	case ErrCodeUnknownMatch, ErrCodeNegativeWeight, ErrCodeUnknownTuple, ErrCodeRulePanic, ErrCodeEvaluatorFailed:
		return true
	}
	return false
}

// IsRuntimeError reports whether err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func IsRuntimeError(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Code == code
}

// CodeOf returns the code of a RuntimeError, or "" for any other error.
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func newFactError(code RuntimeErrorCode, pos int, id string, msg string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: msg,
		FactID:  id,
		Details: map[string]string{"position": fmt.Sprint(pos)},
		err:     cause,
	}
}

// fromFault converts a network fault into a fatal RuntimeError.
func fromFault(err error) *RuntimeError {
	var f *network.Fault
	if errors.As(err, &f) {
		re := &RuntimeError{
			Code:       RuntimeErrorCode(f.Code),
			Message:    f.Message,
			Constraint: f.Constraint,
			err:        err,
		}
		if f.Node != "" || f.Tuple != "" {
			re.Details = map[string]string{"node": f.Node, "tuple": f.Tuple}
		}
		return re
	}
	return &RuntimeError{Code: ErrCodeEvaluatorFailed, Message: err.Error(), err: err}
}
