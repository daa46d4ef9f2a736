package instrumentation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/meetwhen/internal/logging"
)

// TracerName is the tracer name used for every meetwhen span.
const TracerName = "github.com/teemow/meetwhen"

// Span attribute keys.
const (
	SpanAttrTool          = "mcp.tool"
	SpanAttrService       = "google.service"
	SpanAttrOperation     = "google.operation"
	SpanAttrIdentityHash  = "meetwhen.identity_hash"
	SpanAttrIdentityCount = "meetwhen.identity_count"
	SpanAttrWindowStart   = "meetwhen.window.start"
	SpanAttrWindowEnd     = "meetwhen.window.end"
	SpanAttrMinDuration   = "meetwhen.min_duration"
	SpanAttrBusyCount     = "meetwhen.busy_count"
	SpanAttrFreeCount     = "meetwhen.free_count"
	SpanAttrAttempt       = "meetwhen.attempt"
)

// SpanAttributeBuilder helps construct span attributes with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{attrs: make([]attribute.KeyValue, 0, 8)}
}

// WithTool adds the MCP tool name attribute.
func (b *SpanAttributeBuilder) WithTool(tool string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrTool, tool))
	return b
}

// WithIdentity adds the anonymized identity. Raw identities never reach spans.
func (b *SpanAttributeBuilder) WithIdentity(identity string) *SpanAttributeBuilder {
	if identity != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrIdentityHash, logging.AnonymizeIdentity(identity)))
	}
	return b
}

// WithIdentityCount adds the number of identities in a query.
func (b *SpanAttributeBuilder) WithIdentityCount(n int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrIdentityCount, n))
	return b
}

// WithWindow adds the query window bounds in RFC 3339.
func (b *SpanAttributeBuilder) WithWindow(start, end time.Time) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.String(SpanAttrWindowStart, start.Format(time.RFC3339)),
		attribute.String(SpanAttrWindowEnd, end.Format(time.RFC3339)),
	)
	return b
}

// WithMinDuration adds the minimum free window length.
func (b *SpanAttributeBuilder) WithMinDuration(d time.Duration) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrMinDuration, d.String()))
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// The caller is responsible for ending the span with defer span.End().
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts a server span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "tool."+toolName,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartCalendarSpan starts a client span named calendar.<operation>.
func StartCalendarSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String(SpanAttrService, ServiceCalendar),
		attribute.String(SpanAttrOperation, operation),
	}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, ServiceCalendar+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the current span in context, or "".
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context, or "".
func GetSpanID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
