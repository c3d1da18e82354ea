// Package engine executes orchestration graphs. It keeps a registry of
// live and finished runs, schedules ready nodes in concurrent waves,
// dispatches each node kind to its component (invoker, router, aggregator,
// guardrail enforcer, human gate, memory store, monitor), bounds cycles
// with a per-run hop budget, and exposes the run control surface:
// StartRun, GetRunStatus, ListRuns, ResumeHuman, CancelRun.
package engine
