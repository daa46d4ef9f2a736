// Package instrumentation wires OpenTelemetry metrics and tracing for meetwhen.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: API requests by method, route and status
//   - availability_requests_total, availability_request_duration_seconds: availability computations by outcome
//   - calendar_fetch_total, calendar_fetch_duration_seconds: per-identity free/busy fetches by outcome
//   - credential_invalidations_total: stored credentials removed, by reason
//   - oauth_auth_total: completed consent flows by result
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds: MCP tool calls by tool and status
//
// Identities are never used as label values. With METRICS_DETAILED_LABELS=true
// the fetch metrics carry the identity's email domain.
//
// # Tracing
//
// Spans are created for availability computations (scheduler.ComputeAvailability),
// calendar fetches (calendar.FetchBusy) and MCP tool calls (tool.<name>).
// Identities appear on spans only as hashes.
//
// # Configuration
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER (prometheus,
// otlp, stdout), TRACING_EXPORTER (otlp, stdout, none),
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
// OTEL_TRACES_SAMPLER_ARG, OTEL_SERVICE_NAME, METRICS_DETAILED_LABELS,
// AUDIT_LOGGING_ENABLED and AUDIT_LOGGING_INCLUDE_PII.
//
// # Audit trail
//
// AuditLogger records every credential lifecycle change (stored, invalidated,
// revoked, deleted) and every MCP tool call.
package instrumentation
