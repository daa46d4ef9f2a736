package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrReason  = "reason"
	attrResult  = "result"
	attrTool    = "tool"
	attrDomain  = "identity_domain"
	attrService = "service"
)

// Metrics records meetwhen's counters and histograms. The zero value is a
// no-op recorder, which is what a disabled Provider hands out.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	availabilityRequestsTotal   metric.Int64Counter
	availabilityRequestDuration metric.Float64Histogram

	calendarFetchTotal    metric.Int64Counter
	calendarFetchDuration metric.Float64Histogram

	credentialInvalidationsTotal metric.Int64Counter
	oauthAuthTotal               metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	latencyBuckets := metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)

	var err error
	if m.httpRequestsTotal, err = meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0)); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.availabilityRequestsTotal, err = meter.Int64Counter("availability_requests_total",
		metric.WithDescription("Total number of availability computations by outcome"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("failed to create availability_requests_total counter: %w", err)
	}
	if m.availabilityRequestDuration, err = meter.Float64Histogram("availability_request_duration_seconds",
		metric.WithDescription("Availability computation duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets); err != nil {
		return nil, fmt.Errorf("failed to create availability_request_duration_seconds histogram: %w", err)
	}

	if m.calendarFetchTotal, err = meter.Int64Counter("calendar_fetch_total",
		metric.WithDescription("Total number of per-identity free/busy fetches by outcome"),
		metric.WithUnit("{fetch}")); err != nil {
		return nil, fmt.Errorf("failed to create calendar_fetch_total counter: %w", err)
	}
	if m.calendarFetchDuration, err = meter.Float64Histogram("calendar_fetch_duration_seconds",
		metric.WithDescription("Per-identity free/busy fetch duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets); err != nil {
		return nil, fmt.Errorf("failed to create calendar_fetch_duration_seconds histogram: %w", err)
	}

	if m.credentialInvalidationsTotal, err = meter.Int64Counter("credential_invalidations_total",
		metric.WithDescription("Total number of stored credentials removed, by reason"),
		metric.WithUnit("{credential}")); err != nil {
		return nil, fmt.Errorf("failed to create credential_invalidations_total counter: %w", err)
	}
	if m.oauthAuthTotal, err = meter.Int64Counter("oauth_auth_total",
		metric.WithDescription("Total number of completed OAuth consent flows by result"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	if m.toolInvocationsTotal, err = meter.Int64Counter("mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}")); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram("mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		latencyBuckets); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, route pattern, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAvailabilityRequest records one ComputeAvailability call.
// status is one of success, invalid, no_credential, transient, error.
func (m *Metrics) RecordAvailabilityRequest(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.availabilityRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.availabilityRequestsTotal.Add(ctx, 1, attrs)
	m.availabilityRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCalendarFetch records one identity's free/busy fetch.
// The identity's domain is attached only when detailed labels are enabled.
func (m *Metrics) RecordCalendarFetch(ctx context.Context, identity, status string, duration time.Duration) {
	if m == nil || m.calendarFetchTotal == nil {
		return
	}

	kv := []attribute.KeyValue{
		attribute.String(attrService, ServiceCalendar),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels {
		kv = append(kv, attribute.String(attrDomain, IdentityDomain(identity)))
	}

	attrs := metric.WithAttributes(kv...)
	m.calendarFetchTotal.Add(ctx, 1, attrs)
	m.calendarFetchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCredentialInvalidation records a stored credential being removed.
func (m *Metrics) RecordCredentialInvalidation(ctx context.Context, reason string) {
	if m == nil || m.credentialInvalidationsTotal == nil {
		return
	}
	m.credentialInvalidationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// RecordOAuthAuth records the outcome of an OAuth callback.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
