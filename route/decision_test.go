package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

func TestEvaluateDecision_FirstMatch(t *testing.T) {
	cfg := &graph.DecisionConfig{
		EvaluationMode: graph.EvalFirstMatch,
		Conditions: []graph.DecisionCondition{
			{
				Condition: types.Condition{Field: "confidence", Operator: types.OpLessThan, Value: 0.5},
				Action:    graph.ActionRouteToHuman,
				Target:    "review",
			},
			{
				Condition: types.Condition{Field: "topic", Operator: types.OpEquals, Value: "billing"},
				Action:    graph.ActionRouteToAgent,
				Target:    "billing-agent",
			},
		},
		DefaultAction: graph.Action{Kind: graph.ActionRouteToAgent, Target: "general"},
	}

	// Low confidence routes to human even though the billing rule would
	// also match: first true condition in array order wins.
	ectx := types.NewExecutionContext(map[string]any{"confidence": 0.3, "topic": "billing"})
	actions := EvaluateDecision(cfg, ectx)
	require.Len(t, actions, 1)
	assert.Equal(t, graph.ActionRouteToHuman, actions[0].Kind)
	assert.Equal(t, "review", actions[0].Target)

	// No match falls through to the default.
	ectx = types.NewExecutionContext(map[string]any{"confidence": 0.9, "topic": "shipping"})
	actions = EvaluateDecision(cfg, ectx)
	require.Len(t, actions, 1)
	assert.Equal(t, "general", actions[0].Target)
}

func TestEvaluateDecision_HighestPriority(t *testing.T) {
	cfg := &graph.DecisionConfig{
		EvaluationMode: graph.EvalHighestPriority,
		Conditions: []graph.DecisionCondition{
			{
				Condition: types.Condition{Field: "topic", Operator: types.OpContains, Value: "refund"},
				Action:    graph.ActionRouteToAgent, Target: "refunds", Priority: 1,
			},
			{
				Condition: types.Condition{Field: "topic", Operator: types.OpContains, Value: "fraud"},
				Action:    graph.ActionRouteToHuman, Target: "fraud-desk", Priority: 10,
			},
			{
				Condition: types.Condition{Field: "topic", Operator: types.OpContains, Value: "fraud"},
				Action:    graph.ActionRouteToAgent, Target: "late-duplicate", Priority: 10,
			},
		},
	}

	ectx := types.NewExecutionContext(map[string]any{"topic": "refund for fraud charge"})
	actions := EvaluateDecision(cfg, ectx)
	require.Len(t, actions, 1)
	assert.Equal(t, "fraud-desk", actions[0].Target, "highest priority wins, ties broken by array order")
}

func TestEvaluateDecision_AllConditions(t *testing.T) {
	cfg := &graph.DecisionConfig{
		EvaluationMode: graph.EvalAllConditions,
		Conditions: []graph.DecisionCondition{
			{
				Condition: types.Condition{Field: "confidence", Operator: types.OpGreaterThan, Value: 0.8},
				Action:    graph.ActionRouteToAgent, Target: "publisher",
			},
			{
				Condition: types.Condition{Field: "reviewed", Operator: types.OpEquals, Value: true},
				Action:    graph.ActionTriggerTool, Target: "notifier",
			},
		},
		DefaultAction: graph.Action{Kind: graph.ActionEndWorkflow},
	}

	// Both hold: every action fires (fan-out).
	ectx := types.NewExecutionContext(map[string]any{"confidence": 0.9, "reviewed": true})
	actions := EvaluateDecision(cfg, ectx)
	require.Len(t, actions, 2)
	assert.Equal(t, "publisher", actions[0].Target)
	assert.Equal(t, "notifier", actions[1].Target)

	// One fails: default applies.
	ectx = types.NewExecutionContext(map[string]any{"confidence": 0.9, "reviewed": false})
	actions = EvaluateDecision(cfg, ectx)
	require.Len(t, actions, 1)
	assert.Equal(t, graph.ActionEndWorkflow, actions[0].Kind)
}

func TestEvaluateDecision_NoDefaultNoMatch(t *testing.T) {
	cfg := &graph.DecisionConfig{
		Conditions: []graph.DecisionCondition{
			{
				Condition: types.Condition{Field: "x", Operator: types.OpEquals, Value: 1},
				Action:    graph.ActionRouteToAgent, Target: "a",
			},
		},
	}

	actions := EvaluateDecision(cfg, types.NewExecutionContext(nil))
	assert.Empty(t, actions)
}
