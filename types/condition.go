package types

import "strings"

// Operator is a condition comparison operator.
type Operator string

const (
	OpContains    Operator = "contains"
	OpEquals      Operator = "equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
)

// Condition is a pure predicate over the execution context, shared by
// decision, handoff and guardrail nodes. Evaluation never has side effects
// and never panics: a missing field or a non-coercible value is a non-match.
type Condition struct {
	Field         string   `json:"field" yaml:"field"`
	Operator      Operator `json:"operator" yaml:"operator"`
	Value         any      `json:"value" yaml:"value"`
	CaseSensitive bool     `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`
}

// Evaluate applies the condition against the execution context.
// String operators compare case-insensitively unless CaseSensitive is set.
// Numeric operators coerce both sides to float64; non-coercible values are
// a non-match rather than an error.
func (c Condition) Evaluate(ectx *ExecutionContext) bool {
	actual, ok := ectx.Get(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case OpGreaterThan, OpLessThan:
		left, lok := CoerceFloat(actual)
		right, rok := CoerceFloat(c.Value)
		if !lok || !rok {
			return false
		}
		if c.Operator == OpGreaterThan {
			return left > right
		}
		return left < right

	case OpEquals:
		// Prefer numeric equality when both sides coerce cleanly.
		if left, lok := CoerceFloat(actual); lok {
			if right, rok := CoerceFloat(c.Value); rok {
				return left == right
			}
		}
		left, right, ok := c.stringOperands(actual)
		if !ok {
			return false
		}
		return left == right

	case OpContains:
		left, right, ok := c.stringOperands(actual)
		return ok && strings.Contains(left, right)

	case OpStartsWith:
		left, right, ok := c.stringOperands(actual)
		return ok && strings.HasPrefix(left, right)

	case OpEndsWith:
		left, right, ok := c.stringOperands(actual)
		return ok && strings.HasSuffix(left, right)

	default:
		return false
	}
}

// EvaluateAll reports whether every condition matches. An empty slice matches.
func EvaluateAll(conditions []Condition, ectx *ExecutionContext) bool {
	for _, c := range conditions {
		if !c.Evaluate(ectx) {
			return false
		}
	}
	return true
}

// EvaluateAny reports whether at least one condition matches.
// An empty slice does not match.
func EvaluateAny(conditions []Condition, ectx *ExecutionContext) bool {
	for _, c := range conditions {
		if c.Evaluate(ectx) {
			return true
		}
	}
	return false
}

func (c Condition) stringOperands(actual any) (string, string, bool) {
	left, lok := CoerceString(actual)
	right, rok := CoerceString(c.Value)
	if !lok || !rok {
		return "", "", false
	}
	if !c.CaseSensitive {
		left = strings.ToLower(left)
		right = strings.ToLower(right)
	}
	return left, right, true
}
