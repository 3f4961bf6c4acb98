package rules

import "time"

// Operator is the comparison a Condition applies to a record field.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpMatches     Operator = "matches"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
)

// Logic joins a condition's result with the result of the next condition.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Status is the lifecycle state of a rule version.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ExceptionType buckets a failed record for the exception queue.
type ExceptionType string

const (
	ExceptionNone             ExceptionType = ""
	ExceptionAmountMismatch   ExceptionType = "AmountMismatch"
	ExceptionDateDiscrepancy  ExceptionType = "DateDiscrepancy"
	ExceptionMissingReference ExceptionType = "MissingReference"
	ExceptionAccountMismatch  ExceptionType = "AccountMismatch"
	ExceptionOther            ExceptionType = "Other"
)

// Condition is a single field-level comparison inside a rule.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	// Value is either a literal operand or a reference to a field of the
	// target record (see ResolveOperand).
	Value string `json:"value" yaml:"value"`
	// Logic is applied between this condition and the next one.
	Logic Logic `json:"logic,omitempty" yaml:"logic,omitempty"`
	// FullMatch anchors a matches pattern to the whole value.
	FullMatch bool `json:"fullMatch,omitempty" yaml:"fullMatch,omitempty"`
}

// RuleDefinition is one published (or draft) version of a reconciliation rule.
// A definition is never edited in place: a change produces a new version.
type RuleDefinition struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string      `json:"version" yaml:"version"`
	Status      Status      `json:"status" yaml:"status"`
	Conditions  []Condition `json:"conditions" yaml:"conditions"`
	// Logic is an advisory boolean expression over the conditions. The
	// verdict is always computed from Conditions.
	Logic     string    `json:"logic,omitempty" yaml:"logic,omitempty"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored definitions.
func (r *RuleDefinition) Clone() *RuleDefinition {
	if r == nil {
		return nil
	}
	c := *r
	c.Conditions = append([]Condition(nil), r.Conditions...)
	return &c
}

// TemplateDefinition is a reusable rule blueprint.
type TemplateDefinition struct {
	RuleDefinition `yaml:",inline"`
	Category       string  `json:"category" yaml:"category"`
	Complexity     string  `json:"complexity" yaml:"complexity"`
	UsageCount     int     `json:"usageCount" yaml:"usageCount"`
	Rating         float64 `json:"rating" yaml:"rating"`
}

// RecordPair is a source record and its reconciliation counterpart.
type RecordPair struct {
	ID     string         `json:"id,omitempty"`
	Source map[string]any `json:"source"`
	Target map[string]any `json:"target"`
}

// ConditionFailure describes why a single condition evaluated false.
type ConditionFailure struct {
	Index    int      `json:"index"`
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Expected string   `json:"expected"`
	Actual   string   `json:"actual"`
	Reason   string   `json:"reason"`

	// Err is set when the condition could not be evaluated at all, such as
	// a malformed pattern or a non-numeric operand.
	Err *ConditionEvaluationError `json:"-"`
}

// EvaluationResult is the verdict for one record of a batch.
type EvaluationResult struct {
	RuleID           string             `json:"ruleId"`
	RecordID         string             `json:"recordId"`
	Passed           bool               `json:"passed"`
	FailedConditions []int              `json:"failedConditions"`
	ExceptionType    ExceptionType      `json:"exceptionType,omitempty"`
	Diagnostics      []ConditionFailure `json:"diagnostics,omitempty"`
	// AdvisoryMismatch is set when the rule's advisory logic expression
	// disagrees with the authoritative verdict.
	AdvisoryMismatch bool `json:"advisoryMismatch,omitempty"`
}

// BatchRunResult summarises one invocation of the runner.
type BatchRunResult struct {
	RuleID        string              `json:"ruleId"`
	RuleVersion   string              `json:"ruleVersion"`
	TotalRecords  int                 `json:"totalRecords"`
	PassedRecords int                 `json:"passedRecords"`
	FailedRecords int                 `json:"failedRecords"`
	Results       []*EvaluationResult `json:"results"`
	StartedAt     time.Time           `json:"startedAt"`
	Duration      time.Duration       `json:"duration"`
}

// Failures returns the results that did not pass, in input order.
func (b *BatchRunResult) Failures() []*EvaluationResult {
	failed := make([]*EvaluationResult, 0, b.FailedRecords)
	for _, r := range b.Results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
