// Package observability provides metrics, structured logging, and
// distributed tracing for the BuildScale server.
//
// The three pillars:
//
//  1. Metrics - Prometheus counters, gauges and histograms covering HTTP
//     traffic, model provider calls, tool executions, agent actors,
//     cache effectiveness and database queries. Served at /metrics.
//  2. Logging - slog-based structured logging with request correlation
//     pulled from context and automatic redaction of secrets.
//  3. Tracing - OpenTelemetry spans exported over OTLP gRPC. Disabled
//     (no-op) when no collector endpoint is configured.
//
// All three are wired once in the server entrypoint and passed down
// through constructors; packages never reach for globals.
package observability
