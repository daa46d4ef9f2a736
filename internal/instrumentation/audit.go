package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/meetwhen/internal/logging"
)

// Credential lifecycle actions recorded in the audit trail.
const (
	ActionStored      = "stored"
	ActionInvalidated = "invalidated"
	ActionRevoked     = "revoked"
	ActionDeleted     = "deleted"
)

// CredentialEvent is one change to an identity's stored authorization.
//
// Identity is PII. LogAttrs hashes it; LogAuditAttrs keeps it and must only
// be routed to an access-controlled audit stream.
type CredentialEvent struct {
	Action   string
	Identity string

	// Source is the surface that triggered the change (http, cli, mcp, scheduler).
	Source string
	Reason string

	Time    time.Time
	Success bool
	Error   string

	TraceID string
	SpanID  string
}

// NewCredentialEvent starts an event for identity.
func NewCredentialEvent(action, identity string) *CredentialEvent {
	return &CredentialEvent{
		Action:   action,
		Identity: identity,
		Time:     time.Now().UTC(),
		Success:  true,
	}
}

// WithSource sets the triggering surface.
func (e *CredentialEvent) WithSource(source string) *CredentialEvent {
	e.Source = source
	return e
}

// WithReason sets a short machine-readable reason.
func (e *CredentialEvent) WithReason(reason string) *CredentialEvent {
	e.Reason = reason
	return e
}

// WithError marks the event failed. A nil err leaves it unchanged.
func (e *CredentialEvent) WithError(err error) *CredentialEvent {
	if err != nil {
		e.Success = false
		e.Error = err.Error()
	}
	return e
}

// WithSpanContext copies trace and span IDs from ctx.
func (e *CredentialEvent) WithSpanContext(ctx context.Context) *CredentialEvent {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		e.TraceID = sc.TraceID().String()
		e.SpanID = sc.SpanID().String()
	}
	return e
}

// LogAttrs returns attributes with the identity hashed.
func (e *CredentialEvent) LogAttrs() []slog.Attr {
	return e.attrs(logging.IdentityHash(e.Identity))
}

// LogAuditAttrs returns attributes including the raw identity.
func (e *CredentialEvent) LogAuditAttrs() []slog.Attr {
	return e.attrs(slog.String("identity", e.Identity))
}

func (e *CredentialEvent) attrs(who slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		who,
		slog.String("identity_domain", IdentityDomain(e.Identity)),
		slog.Bool("success", e.Success),
		slog.Time("at", e.Time),
	}
	if e.Source != "" {
		attrs = append(attrs, slog.String("source", e.Source))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID), slog.String("span_id", e.SpanID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, e.Error))
	}
	return attrs
}

// ToolInvocation captures one MCP tool call for the audit trail.
type ToolInvocation struct {
	Tool       string
	Identities []string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{Tool: tool, StartTime: time.Now()}
}

// WithIdentities records the identities the call touched.
func (ti *ToolInvocation) WithIdentities(identities ...string) *ToolInvocation {
	ti.Identities = append(ti.Identities, identities...)
	return ti
}

// WithSpanContext extracts the trace ID from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	return ti
}

// Complete marks the invocation finished and calculates its duration.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
func (ti *ToolInvocation) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String(logging.KeyTool, ti.Tool),
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if len(ti.Identities) > 0 {
		if includePII {
			attrs = append(attrs, slog.Any("identities", ti.Identities))
		} else {
			attrs = append(attrs, logging.IdentityHashes(ti.Identities))
		}
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}
	return attrs
}

// AuditLogger writes the audit trail for credential changes and tool calls.
// A nil *AuditLogger discards everything.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that hashes identities.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates an AuditLogger from config.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String(logging.KeyComponent, "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogCredentialEvent writes e to the audit trail.
func (al *AuditLogger) LogCredentialEvent(ctx context.Context, e *CredentialEvent) {
	if al == nil || !al.enabled || e == nil {
		return
	}

	attrs := e.LogAttrs()
	if al.includePII {
		attrs = e.LogAuditAttrs()
	}

	level := slog.LevelInfo
	if !e.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "credential_"+e.Action, attrs...)
}

// LogToolInvocation writes ti to the audit trail.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled || ti == nil {
		return
	}

	if ti.Success {
		al.logger.LogAttrs(ctx, slog.LevelInfo, "tool_executed", ti.LogAttrs(al.includePII)...)
	} else {
		al.logger.LogAttrs(ctx, slog.LevelWarn, "tool_failed", ti.LogAttrs(al.includePII)...)
	}
}
