package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is one entry in the identity audit stream: logins, lockouts,
// MFA checks, token refreshes, logouts. The same shape is persisted to the
// audit_logs table by the service layer; this logger is the structured
// stream half of that dual write.
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
}

// AuditLogger writes audit events to the structured log stream.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger on top of the given slog logger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt records one authentication event. Failures log at warn so
// a credential-stuffing run is visible without a log-level change.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.Time("timestamp", time.Now().UTC()),
	)

	// Identity fields are optional: a failed login for an unknown email has
	// no user ID, and service-internal events carry no transport metadata.
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}
