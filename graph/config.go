package graph

import (
	"github.com/agentgraph/agentgraph/types"
)

// NodeKind identifies the behavior of a node.
type NodeKind string

const (
	KindAgent      NodeKind = "agent"
	KindDecision   NodeKind = "decision"
	KindHandoff    NodeKind = "handoff"
	KindAggregator NodeKind = "aggregator"
	KindGuardrail  NodeKind = "guardrail"
	KindHuman      NodeKind = "human"
	KindMemory     NodeKind = "memory"
	KindMonitor    NodeKind = "monitor"
)

// Kinds lists every supported node kind.
func Kinds() []NodeKind {
	return []NodeKind{
		KindAgent, KindDecision, KindHandoff, KindAggregator,
		KindGuardrail, KindHuman, KindMemory, KindMonitor,
	}
}

// NodeConfig is the tagged union of per-kind node configurations. The engine
// dispatches on the concrete type, never on loosely-typed maps.
type NodeConfig interface {
	Kind() NodeKind
}

// ActionKind is what a routing decision does once selected.
type ActionKind string

const (
	ActionRouteToAgent ActionKind = "route_to_agent"
	ActionRouteToHuman ActionKind = "route_to_human"
	ActionEndWorkflow  ActionKind = "end_workflow"
	ActionTriggerTool  ActionKind = "trigger_tool"
)

// Action pairs an action kind with its target node.
type Action struct {
	Kind   ActionKind `json:"kind" yaml:"kind"`
	Target string     `json:"target,omitempty" yaml:"target,omitempty"`
}

// AgentConfig configures an agent node: one bounded invocation of a single
// agent runtime.
type AgentConfig struct {
	AgentID string   `json:"agent_id" yaml:"agent_id"`
	Prompt  string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// OutputField is the context field the response is written to.
	// Defaults to "agent_response".
	OutputField string `json:"output_field,omitempty" yaml:"output_field,omitempty"`
}

func (AgentConfig) Kind() NodeKind { return KindAgent }

// EvaluationMode controls how a decision node combines its conditions.
type EvaluationMode string

const (
	EvalFirstMatch      EvaluationMode = "first_match"
	EvalHighestPriority EvaluationMode = "highest_priority"
	EvalAllConditions   EvaluationMode = "all_conditions"
)

// DecisionCondition is one routing rule of a decision node.
type DecisionCondition struct {
	Condition types.Condition `json:"condition" yaml:"condition"`
	Action    ActionKind      `json:"action" yaml:"action"`
	Target    string          `json:"target,omitempty" yaml:"target,omitempty"`
	Priority  int             `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// DecisionConfig configures a decision node.
type DecisionConfig struct {
	Conditions     []DecisionCondition `json:"conditions" yaml:"conditions"`
	DefaultAction  Action              `json:"default_action" yaml:"default_action"`
	EvaluationMode EvaluationMode      `json:"evaluation_mode,omitempty" yaml:"evaluation_mode,omitempty"`
}

func (DecisionConfig) Kind() NodeKind { return KindDecision }

// HandoffStrategy selects how a handoff node picks its target.
type HandoffStrategy string

const (
	HandoffExpertise   HandoffStrategy = "expertise_based"
	HandoffLoadBalance HandoffStrategy = "load_balanced"
	HandoffRoundRobin  HandoffStrategy = "round_robin"
	HandoffConditional HandoffStrategy = "conditional"
	HandoffManual      HandoffStrategy = "manual"
)

// ContextMode controls how much of the execution context is forwarded on a
// handoff.
type ContextMode string

const (
	ContextFull      ContextMode = "full"
	ContextSummary   ContextMode = "summary"
	ContextKeyPoints ContextMode = "key_points"
	ContextCustom    ContextMode = "custom"
)

// HandoffTarget is one candidate target of a handoff node.
type HandoffTarget struct {
	// Target is the node id execution continues at when selected.
	Target     string            `json:"target" yaml:"target"`
	Weight     float64           `json:"weight,omitempty" yaml:"weight,omitempty"`
	Conditions []types.Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// HandoffFallback is taken on timeout or when no target qualifies.
type HandoffFallback struct {
	Action Action `json:"action" yaml:"action"`
}

// HandoffConfig configures a handoff node.
type HandoffConfig struct {
	Strategy HandoffStrategy `json:"strategy" yaml:"strategy"`
	Targets  []HandoffTarget `json:"targets" yaml:"targets"`
	// ContextMode defaults to full.
	ContextMode      ContextMode      `json:"context_mode,omitempty" yaml:"context_mode,omitempty"`
	KeyFields        []string         `json:"key_fields,omitempty" yaml:"key_fields,omitempty"`
	CompressionRatio float64          `json:"compression_ratio,omitempty" yaml:"compression_ratio,omitempty"`
	Fallback         *HandoffFallback `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Timeout          Duration         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func (HandoffConfig) Kind() NodeKind { return KindHandoff }

// AggregationMethod reduces N agent responses to one result.
type AggregationMethod string

const (
	AggConsensus       AggregationMethod = "consensus"
	AggWeightedAverage AggregationMethod = "weighted_average"
	AggMajorityVote    AggregationMethod = "majority_vote"
	AggBestConfidence  AggregationMethod = "best_confidence"
	AggAIJudge         AggregationMethod = "ai_judge"
)

// OutputFormat controls what the aggregator writes back to the context.
type OutputFormat string

const (
	FormatCombined OutputFormat = "combined"
	FormatRanked   OutputFormat = "ranked"
	FormatSummary  OutputFormat = "summary"
	FormatDetailed OutputFormat = "detailed"
)

// AggregatorInput is one agent feeding an aggregator node.
type AggregatorInput struct {
	AgentID  string  `json:"agent_id" yaml:"agent_id"`
	Weight   float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Required bool    `json:"required,omitempty" yaml:"required,omitempty"`
}

// AggregatorConfig configures an aggregator node.
type AggregatorConfig struct {
	Inputs        []AggregatorInput `json:"inputs" yaml:"inputs"`
	Method        AggregationMethod `json:"method" yaml:"method"`
	MinimumInputs int               `json:"minimum_inputs,omitempty" yaml:"minimum_inputs,omitempty"`
	// ConfidenceThreshold is the response share the largest consensus
	// cluster needs for agreement; zero means a strict majority.
	ConfidenceThreshold float64  `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty"`
	Timeout             Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RequireAllInputs    bool     `json:"require_all_inputs,omitempty" yaml:"require_all_inputs,omitempty"`
	// Choices is the discrete label set majority_vote normalizes to.
	Choices      []string     `json:"choices,omitempty" yaml:"choices,omitempty"`
	OutputFormat OutputFormat `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	Prompt       string       `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

func (AggregatorConfig) Kind() NodeKind { return KindAggregator }

// RuleSeverity grades a guardrail violation.
type RuleSeverity string

const (
	SeverityLow      RuleSeverity = "low"
	SeverityMedium   RuleSeverity = "medium"
	SeverityHigh     RuleSeverity = "high"
	SeverityCritical RuleSeverity = "critical"
)

// RuleAction is what a matched guardrail rule does.
type RuleAction string

const (
	RuleBlock    RuleAction = "block"
	RuleWarn     RuleAction = "warn"
	RuleModify   RuleAction = "modify"
	RuleEscalate RuleAction = "escalate"
	RuleLogOnly  RuleAction = "log_only"
)

// GuardrailRule is one ordered safety rule of a guardrail node.
type GuardrailRule struct {
	Type      string          `json:"type" yaml:"type"`
	Condition types.Condition `json:"condition" yaml:"condition"`
	Severity  RuleSeverity    `json:"severity,omitempty" yaml:"severity,omitempty"`
	Action    RuleAction      `json:"action" yaml:"action"`
	Message   string          `json:"message,omitempty" yaml:"message,omitempty"`
	Enabled   bool            `json:"enabled" yaml:"enabled"`
	// Replacement substitutes the matched value when Action is modify.
	Replacement string `json:"replacement,omitempty" yaml:"replacement,omitempty"`
}

// EscalationAction fires when the per-run violation count reaches the
// escalation threshold.
type EscalationAction string

const (
	EscalateNotifyHuman  EscalationAction = "notify_human"
	EscalateStopWorkflow EscalationAction = "stop_workflow"
	EscalateSupervisor   EscalationAction = "route_to_supervisor"
)

// EscalationPolicy configures guardrail escalation for a run.
type EscalationPolicy struct {
	Threshold int              `json:"threshold" yaml:"threshold"`
	Action    EscalationAction `json:"action" yaml:"action"`
	Target    string           `json:"target,omitempty" yaml:"target,omitempty"`
}

// GuardrailConfig configures a guardrail node.
type GuardrailConfig struct {
	Rules      []GuardrailRule   `json:"rules" yaml:"rules"`
	Escalation *EscalationPolicy `json:"escalation,omitempty" yaml:"escalation,omitempty"`
	Bypass     []types.Condition `json:"bypass,omitempty" yaml:"bypass,omitempty"`
}

func (GuardrailConfig) Kind() NodeKind { return KindGuardrail }

// HumanInputType declares what kind of input a human gate collects.
type HumanInputType string

const (
	InputText       HumanInputType = "text"
	InputChoice     HumanInputType = "choice"
	InputApproval   HumanInputType = "approval"
	InputFileUpload HumanInputType = "file_upload"
	InputCustomForm HumanInputType = "custom_form"
)

// TimeoutAction is taken when a human gate expires without input.
type TimeoutAction string

const (
	TimeoutContinue TimeoutAction = "continue"
	TimeoutEnd      TimeoutAction = "end_workflow"
	TimeoutFallback TimeoutAction = "fallback"
)

// ValidationRules constrain a human input value before it is accepted.
type ValidationRules struct {
	MinLength int    `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength int    `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// HumanConfig configures a human gate node.
type HumanConfig struct {
	InputType      HumanInputType   `json:"input_type" yaml:"input_type"`
	Prompt         string           `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Choices        []string         `json:"choices,omitempty" yaml:"choices,omitempty"`
	Timeout        Duration         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	TimeoutAction  TimeoutAction    `json:"timeout_action,omitempty" yaml:"timeout_action,omitempty"`
	FallbackTarget string           `json:"fallback_target,omitempty" yaml:"fallback_target,omitempty"`
	DefaultValue   any              `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Validation     *ValidationRules `json:"validation,omitempty" yaml:"validation,omitempty"`
	// OutputField is the context field the human value is merged into.
	// Defaults to "human_input".
	OutputField string `json:"output_field,omitempty" yaml:"output_field,omitempty"`
}

func (HumanConfig) Kind() NodeKind { return KindHuman }

// MemoryOperation is the operation a memory node performs.
type MemoryOperation string

const (
	MemStore    MemoryOperation = "store"
	MemRetrieve MemoryOperation = "retrieve"
	MemUpdate   MemoryOperation = "update"
	MemDelete   MemoryOperation = "delete"
)

// MemoryScope controls visibility of a memory entry.
type MemoryScope string

const (
	ScopeWorkflow MemoryScope = "workflow"
	ScopeSession  MemoryScope = "session"
	ScopeUser     MemoryScope = "user"
	ScopeGlobal   MemoryScope = "global"
)

// MemoryConfig configures a memory node.
type MemoryConfig struct {
	Operation MemoryOperation `json:"operation" yaml:"operation"`
	Key       string          `json:"key" yaml:"key"`
	Scope     MemoryScope     `json:"scope,omitempty" yaml:"scope,omitempty"`
	TTL       Duration        `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// Role is the caller role checked against the entry's access lists.
	Role       string   `json:"role,omitempty" yaml:"role,omitempty"`
	ReadRoles  []string `json:"read_roles,omitempty" yaml:"read_roles,omitempty"`
	WriteRoles []string `json:"write_roles,omitempty" yaml:"write_roles,omitempty"`
	// ValueField is the context field stored, or that a retrieve writes to.
	// Defaults to the key name.
	ValueField string `json:"value_field,omitempty" yaml:"value_field,omitempty"`
}

func (MemoryConfig) Kind() NodeKind { return KindMemory }

// MetricAction fires when a monitored metric breaches its threshold.
type MetricAction string

const (
	MetricAlert    MetricAction = "alert"
	MetricEscalate MetricAction = "escalate"
	MetricStop     MetricAction = "stop_workflow"
)

// MetricSpec declares one monitored metric. The metric value is read from
// the execution context field of the same name; the built-ins "elapsed_ms"
// and "nodes_visited" are provided by the run itself.
type MetricSpec struct {
	Name   string       `json:"name" yaml:"name"`
	Min    *float64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64     `json:"max,omitempty" yaml:"max,omitempty"`
	Action MetricAction `json:"action,omitempty" yaml:"action,omitempty"`
}

// MonitorConfig configures a monitor node.
type MonitorConfig struct {
	Metrics           []MetricSpec `json:"metrics" yaml:"metrics"`
	Channels          []string     `json:"channels,omitempty" yaml:"channels,omitempty"`
	ReportingInterval Duration     `json:"reporting_interval,omitempty" yaml:"reporting_interval,omitempty"`
}

func (MonitorConfig) Kind() NodeKind { return KindMonitor }
