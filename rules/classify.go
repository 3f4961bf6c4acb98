package rules

import "regexp"

var (
	amountField  = regexp.MustCompile(`(?i)(amount|amt|total|balance|price|fee|cost|gross)`)
	dateField    = regexp.MustCompile(`(?i)(date|time|timestamp|_at$|period|posted|settle|value_?day)`)
	accountField = regexp.MustCompile(`(?i)(account|acct|iban|bic|swift|routing|ledger|gl_?code|sort_?code)`)
)

// exceptionPriority orders exception types when more than one applies.
var exceptionPriority = map[ExceptionType]int{
	ExceptionAmountMismatch:   0,
	ExceptionDateDiscrepancy:  1,
	ExceptionMissingReference: 2,
	ExceptionAccountMismatch:  3,
	ExceptionOther:            4,
}

// ClassifyCondition buckets a single failed condition by its field name,
// operator and the presence of the compared values.
func ClassifyCondition(c Condition, pair RecordPair) ExceptionType {
	ch := compileCondition(0, c).check(pair)
	return classifyCheck(c, ch)
}

func classifyCheck(c Condition, ch conditionCheck) ExceptionType {
	switch {
	case amountField.MatchString(c.Field) && isAmountOperator(c.Operator):
		return ExceptionAmountMismatch
	case dateField.MatchString(c.Field):
		return ExceptionDateDiscrepancy
	case ch.missing:
		return ExceptionMissingReference
	case accountField.MatchString(c.Field):
		return ExceptionAccountMismatch
	default:
		return ExceptionOther
	}
}

func isAmountOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// Classify returns the exception type for a record given the indices of its
// failed conditions. When several failed conditions classify differently
// the highest-priority type wins. No failed conditions yields ExceptionNone.
func Classify(conditions []Condition, failedConditions []int, pair RecordPair) ExceptionType {
	best := ExceptionNone
	for _, idx := range failedConditions {
		if idx < 0 || idx >= len(conditions) {
			continue
		}
		t := ClassifyCondition(conditions[idx], pair)
		best = higherPriority(best, t)
	}
	return best
}

func higherPriority(current, candidate ExceptionType) ExceptionType {
	if current == ExceptionNone {
		return candidate
	}
	if exceptionPriority[candidate] < exceptionPriority[current] {
		return candidate
	}
	return current
}
