package rules

import (
	"errors"
	"fmt"
)

var (
	ErrRuleNotFound    = errors.New("rule not found")
	ErrRuleExists      = errors.New("rule already exists")
	ErrVersionConflict = errors.New("rule version conflict")
)

// ValidationError reports a malformed rule. It is fatal for a run and is
// returned before any record is evaluated.
type ValidationError struct {
	RuleID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid rule %q: %s", e.RuleID, e.Reason)
	}
	return fmt.Sprintf("invalid rule %q: %s: %s", e.RuleID, e.Field, e.Reason)
}

// ConditionEvaluationError is a recoverable failure of one condition on one
// record. It never aborts a run; it is reported as a failed condition.
type ConditionEvaluationError struct {
	Index    int
	Field    string
	Operator Operator
	Expected string
	Actual   string
	Reason   string
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("condition %d (%s %s %q): %s", e.Index, e.Field, e.Operator, e.Expected, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
