package rules

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxConditions     = 100
	maxIdentifierLen  = 100
	maxRuleNameLength = 200
)

var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.\-]*$`)

// ValidateRule checks a definition before it is compiled or stored.
// It returns a *ValidationError describing the first problem found.
func ValidateRule(def *RuleDefinition) error {
	if def == nil {
		return &ValidationError{Reason: "rule definition is nil"}
	}

	invalid := func(field, format string, args ...any) error {
		return &ValidationError{RuleID: def.ID, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(def.ID) == "" {
		return invalid("id", "must not be empty")
	}
	if strings.TrimSpace(def.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if len(def.Name) > maxRuleNameLength {
		return invalid("name", "length %d exceeds maximum of %d characters", len(def.Name), maxRuleNameLength)
	}
	if !ValidVersion(def.Version) {
		return invalid("version", "%q is not a semantic version", def.Version)
	}
	if !isValidStatus(def.Status) {
		return invalid("status", "%q must be one of: active, draft, inactive", def.Status)
	}

	if len(def.Conditions) == 0 {
		return invalid("conditions", "rule must contain at least one condition")
	}
	if len(def.Conditions) > maxConditions {
		return invalid("conditions", "rule contains %d conditions, maximum allowed is %d", len(def.Conditions), maxConditions)
	}

	for i, c := range def.Conditions {
		path := fmt.Sprintf("conditions[%d]", i)
		if err := validateFieldName(c.Field); err != nil {
			return invalid(path+".field", "%v", err)
		}
		if !isValidOperator(c.Operator) {
			return invalid(path+".operator", "unknown operator %q (must be one of: equals, notEquals, matches, greaterThan, lessThan)", c.Operator)
		}
		if !isValidLogic(c.Logic) {
			return invalid(path+".logic", "unknown logic %q (must be AND or OR)", c.Logic)
		}
		if c.Operator == OpMatches && c.Value == "" {
			return invalid(path+".value", "matches requires a pattern")
		}
	}

	return nil
}

// validateFieldName validates a record field name used by a condition.
func validateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("field name length %d exceeds maximum of %d characters", len(name), maxIdentifierLen)
	}
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("field name %q must start with a letter or underscore, followed by letters, digits, '_', '.' or '-'", name)
	}
	return nil
}

func isValidOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpMatches, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

func isValidLogic(l Logic) bool {
	switch strings.ToUpper(strings.TrimSpace(string(l))) {
	case "", string(LogicAnd), string(LogicOr):
		return true
	}
	return false
}

func isValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusDraft, StatusInactive:
		return true
	}
	return false
}
