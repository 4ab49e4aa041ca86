// Package telemetry provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the marble deployment engine.
//
// Logging is built on zerolog with component child loggers and context
// plumbing. Metrics cover the batch transport (requests, retries by cause,
// splits, per-item outcomes) and reconciliation runs. Tracing wraps the
// OpenTelemetry SDK with span helpers for transport sends and reconcile
// phases; exporters are selected by configuration (otlp, stdout, none).
package telemetry
