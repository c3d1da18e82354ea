// Package guardrail evaluates ordered safety rules against the execution
// context before results propagate downstream. Rules can block, warn,
// modify, escalate or just log; bypass conditions skip enforcement for a
// run, and an escalation policy fires at most once per run when the
// violation count reaches its threshold.
package guardrail
