package rules

import "strings"

// verdict is the composed outcome of every condition of a rule on one record.
type verdict struct {
	passed      bool
	results     []bool
	failed      []int
	diagnostics []ConditionFailure
	checks      []conditionCheck
}

// ComposeVerdict evaluates every condition against pair and folds the
// results left to right. The join between the accumulator and condition i is
// the Logic declared on condition i-1. failedIndices lists every condition
// that evaluated false, whatever the combined verdict.
func ComposeVerdict(conditions []Condition, pair RecordPair) (passed bool, failedIndices []int) {
	compiled := make([]compiledCondition, len(conditions))
	for i, c := range conditions {
		compiled[i] = compileCondition(i, c)
	}
	v := compose(compiled, pair)
	return v.passed, v.failed
}

func compose(conditions []compiledCondition, pair RecordPair) verdict {
	v := verdict{
		results: make([]bool, len(conditions)),
		checks:  make([]conditionCheck, len(conditions)),
		failed:  []int{},
	}
	if len(conditions) == 0 {
		return v
	}

	// All conditions are evaluated so diagnostics are complete.
	for i, cc := range conditions {
		ch := cc.check(pair)
		v.checks[i] = ch
		v.results[i] = ch.passed
		if !ch.passed {
			v.failed = append(v.failed, i)
			v.diagnostics = append(v.diagnostics, ch.failure(cc))
		}
	}

	acc := v.results[0]
	for i := 1; i < len(conditions); i++ {
		if joinLogic(conditions[i-1].Logic) == LogicOr {
			acc = acc || v.results[i]
		} else {
			acc = acc && v.results[i]
		}
	}
	v.passed = acc
	return v
}

// joinLogic normalises a declared join. An empty join means AND.
func joinLogic(l Logic) Logic {
	if strings.EqualFold(strings.TrimSpace(string(l)), string(LogicOr)) {
		return LogicOr
	}
	return LogicAnd
}
