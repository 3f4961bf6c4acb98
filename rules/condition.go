package rules

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Prefixes that mark a condition value as a reference to a target field.
var referencePrefixes = []string{"target.", "target_"}

var numericPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// compiledCondition is a Condition with its pattern compiled once per rule.
type compiledCondition struct {
	Condition
	index      int
	pattern    *regexp.Regexp
	patternErr error
}

func compileCondition(index int, c Condition) compiledCondition {
	cc := compiledCondition{Condition: c, index: index}
	if c.Operator == OpMatches {
		expr := c.Value
		if c.FullMatch {
			expr = `^(?:` + expr + `)$`
		}
		cc.pattern, cc.patternErr = regexp.Compile(expr)
	}
	return cc
}

// conditionCheck is the outcome of one condition on one record.
type conditionCheck struct {
	passed   bool
	expected string
	actual   string
	reason   string
	// missing is set when the field or its counterpart is absent.
	missing bool
	err     *ConditionEvaluationError
}

func (ch conditionCheck) failure(cc compiledCondition) ConditionFailure {
	return ConditionFailure{
		Index:    cc.index,
		Field:    cc.Field,
		Operator: cc.Operator,
		Expected: ch.expected,
		Actual:   ch.actual,
		Reason:   ch.reason,
		Err:      ch.err,
	}
}

// Evaluate reports whether condition holds for the record pair.
// It has no side effects; evaluation problems count as a false result.
func Evaluate(condition Condition, pair RecordPair) bool {
	return compileCondition(0, condition).check(pair).passed
}

func (cc compiledCondition) check(pair RecordPair) conditionCheck {
	actual, present := lookup(pair.Source, cc.Field)
	// A matches value is always a pattern, never a counterpart reference.
	operand, isRef, found := cc.Value, false, true
	if cc.Operator != OpMatches {
		operand, isRef, found = ResolveOperand(cc.Value, pair.Target)
	}

	ch := conditionCheck{expected: operand, actual: actual}
	if !present {
		ch.missing = true
		ch.reason = "field absent on source record"
		return ch
	}
	if isRef && !found {
		ch.missing = true
		ch.expected = cc.Value
		ch.reason = "counterpart field absent on target record"
		ch.err = cc.evalError(cc.Value, actual, ch.reason)
		return ch
	}

	switch cc.Operator {
	case OpEquals:
		ch.passed = valuesEqual(actual, operand)
		if !ch.passed {
			ch.reason = "values differ"
		}
	case OpNotEquals:
		ch.passed = !valuesEqual(actual, operand)
		if !ch.passed {
			ch.reason = "values are equal"
		}
	case OpMatches:
		ch.expected = cc.Value
		if cc.patternErr != nil {
			ch.reason = "invalid pattern: " + cc.patternErr.Error()
			ch.err = cc.evalError(cc.Value, actual, ch.reason)
			return ch
		}
		ch.passed = cc.pattern.MatchString(actual)
		if !ch.passed {
			ch.reason = "value does not match pattern"
		}
	case OpGreaterThan, OpLessThan:
		a, okA := parseNumber(actual)
		b, okB := parseNumber(operand)
		if !okA || !okB {
			ch.reason = "non-numeric operand for numeric comparison"
			ch.err = cc.evalError(operand, actual, ch.reason)
			return ch
		}
		cmp := a.Cmp(b)
		if cc.Operator == OpGreaterThan {
			ch.passed = cmp > 0
		} else {
			ch.passed = cmp < 0
		}
		if !ch.passed {
			ch.reason = fmt.Sprintf("expected %s %s", cc.Operator, operand)
		}
	default:
		ch.reason = fmt.Sprintf("unknown operator %q", cc.Operator)
		ch.err = cc.evalError(operand, actual, ch.reason)
	}
	return ch
}

func (cc compiledCondition) evalError(expected, actual, reason string) *ConditionEvaluationError {
	return &ConditionEvaluationError{
		Index:    cc.index,
		Field:    cc.Field,
		Operator: cc.Operator,
		Expected: expected,
		Actual:   actual,
		Reason:   reason,
	}
}

// ResolveOperand returns the operand a condition value stands for.
//
// A value equal to the name of a field present on the target record, or a
// value of the form "target.<field>" / "target_<field>", is a reference and
// resolves to the target's field. Anything else is a literal. found is false
// only for references whose field is absent on the target.
func ResolveOperand(value string, target map[string]any) (operand string, isRef bool, found bool) {
	if v, ok := lookup(target, value); ok {
		return v, true, true
	}
	for _, prefix := range referencePrefixes {
		if name, ok := strings.CutPrefix(value, prefix); ok && name != "" {
			v, ok := lookup(target, name)
			return v, true, ok
		}
	}
	return value, false, true
}

// lookup returns the scalar at key as a string. Nil values count as absent.
func lookup(record map[string]any, key string) (string, bool) {
	if record == nil || key == "" {
		return "", false
	}
	v, ok := record[key]
	if !ok || v == nil {
		return "", false
	}
	return scalarString(v), true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// parseNumber parses a plain decimal (optionally with exponent) exactly.
func parseNumber(s string) (*big.Rat, bool) {
	s = strings.TrimSpace(s)
	if !numericPattern.MatchString(s) {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	return r, ok
}

// valuesEqual compares numerically when both sides are numbers, otherwise
// as case-sensitive strings.
func valuesEqual(a, b string) bool {
	if x, ok := parseNumber(a); ok {
		if y, ok := parseNumber(b); ok {
			return x.Cmp(y) == 0
		}
	}
	return a == b
}
