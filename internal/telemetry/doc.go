// Package telemetry wires the OpenTelemetry SDK for the engine's spans and
// metrics. When telemetry is disabled the global providers stay noop and no
// exporter connections are made.
package telemetry
