package guardrail

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// Violation records one matched rule.
type Violation struct {
	RuleType string
	Severity graph.RuleSeverity
	Action   graph.RuleAction
	Message  string
}

// Outcome is the result of one guardrail node evaluation.
type Outcome struct {
	// Bypassed is true when a bypass condition matched and no rules ran.
	Bypassed bool
	// Violations lists every matched rule, in rule order.
	Violations []Violation
	// Blocked means a block rule matched; the engine fails the branch
	// with GUARDRAIL_BLOCKED and nothing downstream activates.
	Blocked      bool
	BlockMessage string
	// Escalation is non-nil when the escalation policy fired on this
	// evaluation. It fires at most once per run.
	Escalation *graph.EscalationPolicy
}

// Enforcer applies guardrail rules for a single run. It carries the run's
// cumulative violation count so escalation thresholds span nodes, and
// remembers whether the escalation policy already fired.
type Enforcer struct {
	violations int
	escalated  bool
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewEnforcer creates a per-run guardrail enforcer.
func NewEnforcer(logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{logger: logger.With(zap.String("component", "guardrail"))}
}

// Violations returns the run's cumulative violation count.
func (e *Enforcer) Violations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.violations
}

// Check evaluates a guardrail node's rules against the context, in rule
// order. Disabled and malformed rules are skipped. A block rule stops
// evaluation immediately; modify rewrites the offending field in place.
func (e *Enforcer) Check(nodeID string, cfg *graph.GuardrailConfig, ectx *types.ExecutionContext) *Outcome {
	outcome := &Outcome{}

	if types.EvaluateAny(cfg.Bypass, ectx) {
		e.logger.Info("guardrail bypassed", zap.String("node_id", nodeID))
		outcome.Bypassed = true
		return outcome
	}

	for i, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		if !validRule(rule) {
			// A malformed rule must not block traffic; treat it as
			// disabled and say so.
			e.logger.Warn("skipping malformed guardrail rule",
				zap.String("node_id", nodeID),
				zap.Int("rule_index", i),
				zap.String("rule_type", rule.Type),
			)
			continue
		}
		if !rule.Condition.Evaluate(ectx) {
			continue
		}

		outcome.Violations = append(outcome.Violations, Violation{
			RuleType: rule.Type,
			Severity: rule.Severity,
			Action:   rule.Action,
			Message:  rule.Message,
		})
		e.recordViolation()

		switch rule.Action {
		case graph.RuleBlock:
			outcome.Blocked = true
			outcome.BlockMessage = rule.Message
			ectx.MarkBlocked(rule.Message)
			e.logger.Warn("guardrail blocked content",
				zap.String("node_id", nodeID),
				zap.String("rule_type", rule.Type),
				zap.String("severity", string(rule.Severity)),
			)
			e.applyEscalation(cfg, outcome, true)
			return outcome

		case graph.RuleWarn:
			e.logger.Warn("guardrail warning",
				zap.String("node_id", nodeID),
				zap.String("rule_type", rule.Type),
				zap.String("message", rule.Message),
			)

		case graph.RuleModify:
			e.modify(nodeID, rule, ectx)

		case graph.RuleEscalate:
			e.applyEscalation(cfg, outcome, true)

		case graph.RuleLogOnly:
			e.logger.Info("guardrail rule matched",
				zap.String("node_id", nodeID),
				zap.String("rule_type", rule.Type),
			)
		}
	}

	e.applyEscalation(cfg, outcome, false)
	return outcome
}

func (e *Enforcer) recordViolation() {
	e.mu.Lock()
	e.violations++
	e.mu.Unlock()
}

// applyEscalation fires the policy when forced (an escalate or block rule
// matched) or when the cumulative count reached the threshold. At most once
// per run.
func (e *Enforcer) applyEscalation(cfg *graph.GuardrailConfig, outcome *Outcome, forced bool) {
	if cfg.Escalation == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.escalated {
		return
	}
	if !forced && (cfg.Escalation.Threshold <= 0 || e.violations < cfg.Escalation.Threshold) {
		return
	}
	e.escalated = true
	outcome.Escalation = cfg.Escalation
	e.logger.Warn("guardrail escalation fired",
		zap.String("action", string(cfg.Escalation.Action)),
		zap.String("target", cfg.Escalation.Target),
		zap.Int("violations", e.violations),
	)
}

// modify rewrites the offending field. A contains rule substitutes the
// matched substring with the replacement, so re-checking the rule no longer
// matches; any other operator replaces the whole value.
func (e *Enforcer) modify(nodeID string, rule graph.GuardrailRule, ectx *types.ExecutionContext) {
	field := rule.Condition.Field
	current, ok := ectx.GetString(field)
	if !ok {
		return
	}

	replaced := rule.Replacement
	if rule.Condition.Operator == types.OpContains {
		needle, _ := types.CoerceString(rule.Condition.Value)
		replaced = replaceFold(current, needle, rule.Replacement, rule.Condition.CaseSensitive)
	}
	ectx.Set(field, replaced)
	e.logger.Info("guardrail modified field",
		zap.String("node_id", nodeID),
		zap.String("field", field),
		zap.String("rule_type", rule.Type),
	)
}

// replaceFold substitutes every occurrence of needle, case-insensitively
// unless the rule's condition is case-sensitive.
func replaceFold(s, needle, replacement string, caseSensitive bool) string {
	if needle == "" {
		return s
	}
	if caseSensitive {
		return strings.ReplaceAll(s, needle, replacement)
	}

	var b strings.Builder
	lower, lowerNeedle := strings.ToLower(s), strings.ToLower(needle)
	for {
		i := strings.Index(lower, lowerNeedle)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		b.WriteString(replacement)
		s, lower = s[i+len(needle):], lower[i+len(lowerNeedle):]
	}
}

// validRule checks the minimum a rule needs to run. Everything else is a
// matter of taste; a rule with an unknown action or no condition field is
// unenforceable and gets skipped.
func validRule(rule graph.GuardrailRule) bool {
	if rule.Condition.Field == "" || rule.Condition.Operator == "" {
		return false
	}
	switch rule.Action {
	case graph.RuleBlock, graph.RuleWarn, graph.RuleModify, graph.RuleEscalate, graph.RuleLogOnly:
		return true
	default:
		return false
	}
}
