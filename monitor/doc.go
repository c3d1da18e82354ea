// Package monitor watches run metrics against declared thresholds and
// dispatches alerts. A monitor node samples its metrics on a reporting
// interval; breaches fire alert channels, escalate to a human, or stop the
// workflow. Prometheus counters for the engine live here too.
package monitor
