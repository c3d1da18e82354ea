// Package types defines the shared data model of the orchestration engine:
// the structured error taxonomy, the run-scoped execution context, agent
// responses, and the condition predicate shared by decision, handoff and
// guardrail nodes.
package types
