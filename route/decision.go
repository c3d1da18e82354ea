package route

import (
	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// EvaluateDecision resolves a decision node's config against the execution
// context and returns the actions to fire, in order. When no condition
// matches, the default action applies; a decision with no default and no
// match returns no actions and the branch simply ends.
func EvaluateDecision(cfg *graph.DecisionConfig, ectx *types.ExecutionContext) []graph.Action {
	mode := cfg.EvaluationMode
	if mode == "" {
		mode = graph.EvalFirstMatch
	}

	switch mode {
	case graph.EvalFirstMatch:
		// Conditions are evaluated in array order; the first true one wins.
		for _, dc := range cfg.Conditions {
			if dc.Condition.Evaluate(ectx) {
				return []graph.Action{{Kind: dc.Action, Target: dc.Target}}
			}
		}

	case graph.EvalHighestPriority:
		// All true conditions compete; highest priority wins, ties broken
		// by array order.
		best := -1
		for i, dc := range cfg.Conditions {
			if !dc.Condition.Evaluate(ectx) {
				continue
			}
			if best == -1 || dc.Priority > cfg.Conditions[best].Priority {
				best = i
			}
		}
		if best >= 0 {
			dc := cfg.Conditions[best]
			return []graph.Action{{Kind: dc.Action, Target: dc.Target}}
		}

	case graph.EvalAllConditions:
		// Every condition must hold; when they do, every action fires
		// (fan-out).
		if len(cfg.Conditions) > 0 {
			all := true
			for _, dc := range cfg.Conditions {
				if !dc.Condition.Evaluate(ectx) {
					all = false
					break
				}
			}
			if all {
				actions := make([]graph.Action, 0, len(cfg.Conditions))
				for _, dc := range cfg.Conditions {
					actions = append(actions, graph.Action{Kind: dc.Action, Target: dc.Target})
				}
				return actions
			}
		}
	}

	if cfg.DefaultAction.Kind != "" {
		return []graph.Action{cfg.DefaultAction}
	}
	return nil
}
