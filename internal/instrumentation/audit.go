package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxbuckets/internal/logging"
)

// AuditEvent captures a user-visible action for the audit trail: MCP tool
// calls, bucket mutations, Google account connect and disconnect.
//
// # Privacy Considerations
//
// UserID may be an email address. LogAttrs only emits the anonymized hash;
// LogAuditAttrs includes the raw id and should only feed secured log streams.
type AuditEvent struct {
	// Action name, e.g. "inbox_search", "bucket.create", "google.disconnect"
	Action string

	UserID string

	// Target is the affected resource id (bucket id, message id), if any.
	Target string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewAuditEvent creates a new AuditEvent with timing started.
// Call Complete() when the action finishes.
func NewAuditEvent(action string) *AuditEvent {
	return &AuditEvent{
		Action:    action,
		StartTime: time.Now(),
	}
}

// WithUser sets the acting user.
func (e *AuditEvent) WithUser(userID string) *AuditEvent {
	e.UserID = userID
	return e
}

// WithTarget sets the affected resource id.
func (e *AuditEvent) WithTarget(target string) *AuditEvent {
	e.Target = target
	return e
}

// WithSpanContext extracts trace context from the current span.
func (e *AuditEvent) WithSpanContext(ctx context.Context) *AuditEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
		e.SpanID = span.SpanContext().SpanID().String()
	}
	return e
}

// Complete marks the event as finished and records its duration and error.
func (e *AuditEvent) Complete(err error) *AuditEvent {
	e.Duration = time.Since(e.StartTime)
	e.Success = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Status returns "success" or "error" based on the Success field.
func (e *AuditEvent) Status() string {
	if e.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes with the user anonymized.
func (e *AuditEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		logging.UserHash(e.UserID),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}
	return e.appendOptional(attrs)
}

// LogAuditAttrs returns slog attributes including the raw user id.
//
// # Security Warning
//
// This method includes PII. Ensure audit logs are stored securely.
func (e *AuditEvent) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.String("user", e.UserID),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	return e.appendOptional(attrs)
}

func (e *AuditEvent) appendOptional(attrs []slog.Attr) []slog.Attr {
	if e.Target != "" {
		attrs = append(attrs, slog.String("target", e.Target))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return attrs
}

// AuditLogger writes AuditEvents to a slog.Logger.
// A nil *AuditLogger discards events.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With(slog.String("component", "audit")),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes the event. Failed actions are logged at warn level.
func (al *AuditLogger) Log(e *AuditEvent) {
	if al == nil || !al.enabled || e == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = e.LogAuditAttrs()
	} else {
		attrs = e.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if e.Success {
		al.logger.Info("audit_event", args...)
	} else {
		al.logger.Warn("audit_event_failed", args...)
	}
}
