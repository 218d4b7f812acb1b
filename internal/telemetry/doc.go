// Package telemetry wires Prometheus collectors and OpenTelemetry tracing
// for the evaluator and the HTTP server.
package telemetry
