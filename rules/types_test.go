package rules

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRuleDefinitionClone(t *testing.T) {
	orig := &RuleDefinition{
		ID:         "r",
		Name:       "Rule",
		Version:    "1.0.0",
		Conditions: []Condition{{Field: "amount", Operator: OpEquals, Value: "1"}},
	}

	c := orig.Clone()
	c.Name = "Changed"
	c.Conditions[0].Value = "2"

	if orig.Name != "Rule" {
		t.Errorf("orig.Name = %q, clone mutation leaked", orig.Name)
	}
	if orig.Conditions[0].Value != "1" {
		t.Errorf("orig.Conditions[0].Value = %q, clone mutation leaked", orig.Conditions[0].Value)
	}

	var nilDef *RuleDefinition
	if nilDef.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestBatchRunResultFailures(t *testing.T) {
	b := &BatchRunResult{
		FailedRecords: 2,
		Results: []*EvaluationResult{
			{RecordID: "a", Passed: false},
			{RecordID: "b", Passed: true},
			{RecordID: "c", Passed: false},
		},
	}

	failed := b.Failures()
	if len(failed) != 2 || failed[0].RecordID != "a" || failed[1].RecordID != "c" {
		t.Errorf("Failures() = %+v, want records a and c", failed)
	}
}

func TestEvaluationResultJSON(t *testing.T) {
	res := &EvaluationResult{
		RuleID:           "r",
		RecordID:         "tx-1",
		Passed:           false,
		FailedConditions: []int{0},
		ExceptionType:    ExceptionAmountMismatch,
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}
	for _, want := range []string{`"ruleId":"r"`, `"failedConditions":[0]`, `"exceptionType":"AmountMismatch"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON %s missing %s", data, want)
		}
	}
	if strings.Contains(string(data), "advisoryMismatch") {
		t.Errorf("JSON %s should omit a false advisoryMismatch", data)
	}
}

func TestRecordPairDecodesNumbers(t *testing.T) {
	var pair RecordPair
	if err := json.Unmarshal([]byte(`{"source":{"amount":100.5},"target":{"amount":"100.50"}}`), &pair); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}

	c := Condition{Field: "amount", Operator: OpEquals, Value: "target_amount"}
	if !Evaluate(c, pair) {
		t.Error("decoded JSON number should equal its decimal string counterpart")
	}
}
