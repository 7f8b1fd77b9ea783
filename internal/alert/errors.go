package alert

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRule marks parameters that can never be evaluated.
	ErrInvalidRule = errors.New("invalid alert rule")
	ErrUnknownKind = errors.New("unknown alert type")
)

// RuleEvaluationError wraps a failure of a single definition's predicate.
type RuleEvaluationError struct {
	AlertID string
	Kind    Kind
	Cause   error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("alert %s (%s): %v", e.AlertID, e.Kind, e.Cause)
}

func (e *RuleEvaluationError) Unwrap() error {
	return e.Cause
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRule, fmt.Sprintf(format, args...))
}
