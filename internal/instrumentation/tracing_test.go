package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/meetwhen/internal/logging"
)

func TestSpanAttributeBuilder(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	attrs := NewSpanAttributeBuilder().
		WithTool("find_availability").
		WithIdentity("alice@example.com").
		WithIdentityCount(3).
		WithWindow(start, start.Add(9*time.Hour)).
		WithMinDuration(30 * time.Minute).
		Build()

	got := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		got[kv.Key] = kv.Value
	}

	assert.Equal(t, "find_availability", got[SpanAttrTool].AsString())
	assert.Equal(t, logging.AnonymizeIdentity("alice@example.com"), got[SpanAttrIdentityHash].AsString())
	assert.NotContains(t, got[SpanAttrIdentityHash].AsString(), "alice")
	assert.Equal(t, int64(3), got[SpanAttrIdentityCount].AsInt64())
	assert.Equal(t, "2025-06-02T09:00:00Z", got[SpanAttrWindowStart].AsString())
	assert.Equal(t, "2025-06-02T18:00:00Z", got[SpanAttrWindowEnd].AsString())
	assert.Equal(t, "30m0s", got[SpanAttrMinDuration].AsString())
}

func TestSpanAttributeBuilder_EmptyIdentity(t *testing.T) {
	attrs := NewSpanAttributeBuilder().WithIdentity("").Build()
	assert.Empty(t, attrs)
}

func TestSpans(t *testing.T) {
	newTestProvider(t)
	ctx := context.Background()

	spanCtx, span := StartSpan(ctx, "scheduler.ComputeAvailability")
	assert.NotNil(t, spanCtx)
	SetSpanSuccess(span)
	span.End()

	_, span = StartToolSpan(ctx, "find_availability")
	AddSpanEvent(span, "resolved", attribute.Int("count", 2))
	span.End()

	_, span = StartCalendarSpan(ctx, "FetchBusy")
	assert.NotPanics(t, func() {
		SetSpanError(span, errors.New("boom"))
		SetSpanError(span, nil)
	})
	span.End()
}

func TestTraceIDs_NoSpan(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))
}
