package types

import (
	"testing"

	"pgregory.net/rapid"
)

// Evaluation must be deterministic and side-effect free: evaluating the same
// condition twice against the same context yields the same result and leaves
// the context untouched.
func TestCondition_EvaluateDeterministic(t *testing.T) {
	operators := []Operator{OpContains, OpEquals, OpGreaterThan, OpLessThan, OpStartsWith, OpEndsWith}

	rapid.Check(t, func(t *rapid.T) {
		field := rapid.StringMatching(`[a-z_]{1,8}`).Draw(t, "field")
		cond := Condition{
			Field:         field,
			Operator:      operators[rapid.IntRange(0, len(operators)-1).Draw(t, "op")],
			Value:         rapid.OneOf(
				rapid.Float64Range(-100, 100).AsAny(),
				rapid.StringMatching(`[a-zA-Z0-9 ]{0,12}`).AsAny(),
			).Draw(t, "value"),
			CaseSensitive: rapid.Bool().Draw(t, "case_sensitive"),
		}

		values := map[string]any{}
		if rapid.Bool().Draw(t, "present") {
			values[field] = rapid.OneOf(
				rapid.Float64Range(-100, 100).AsAny(),
				rapid.StringMatching(`[a-zA-Z0-9 ]{0,12}`).AsAny(),
			).Draw(t, "actual")
		}
		ectx := NewExecutionContext(values)

		before := ectx.Snapshot()
		first := cond.Evaluate(ectx)
		second := cond.Evaluate(ectx)

		if first != second {
			t.Fatalf("non-deterministic evaluation: %v then %v", first, second)
		}
		after := ectx.Snapshot()
		if len(before) != len(after) {
			t.Fatalf("evaluation mutated context: %v -> %v", before, after)
		}
		if _, ok := values[field]; !ok && first {
			t.Fatalf("missing field must never match")
		}
	})
}
