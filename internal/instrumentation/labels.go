package instrumentation

import "time"

// Label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	// Availability request outcomes beyond success/error.
	StatusInvalid      = "invalid"
	StatusNoCredential = "no_credential"
	StatusTransient    = "transient"

	// Calendar fetch outcome for a rejected refresh.
	StatusRejected = "rejected"

	// Credential invalidation reasons.
	ReasonRefreshRejected = "refresh_rejected"
	ReasonRevoked         = "revoked"
	ReasonDeleted         = "deleted"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	ServiceCalendar = "calendar"
)

// Exporters.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)
