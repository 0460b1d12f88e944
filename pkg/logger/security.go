package logger

import (
	"context"
	"log/slog"
	"time"
)

// SecurityLogEntry is the structured form of a security diagnostic
type SecurityLogEntry struct {
	EventType string
	Severity  string
	IPAddress string
	UserAgent string
	Endpoint  string
	Details   string
	Blocked   bool
	UserID    string
	Timestamp time.Time
}

// SecurityLogger writes security diagnostics with a consistent attribute layout
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger,
	}
}

// LogEvent logs a security event at warn level
func (sl *SecurityLogger) LogEvent(entry SecurityLogEntry) {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", entry.EventType),
		slog.String("severity", entry.Severity),
		slog.Bool("blocked", entry.Blocked),
		slog.String("timestamp", ts.UTC().Format(time.RFC3339)),
	}

	if entry.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", entry.IPAddress))
	}
	if entry.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", entry.UserAgent))
	}
	if entry.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", entry.Endpoint))
	}
	if entry.Details != "" {
		attrs = append(attrs, slog.String("details", entry.Details))
	}
	if entry.UserID != "" {
		attrs = append(attrs, slog.String("user_id", entry.UserID))
	}

	sl.logger.LogAttrs(context.Background(), slog.LevelWarn, "security_event", attrs...)
}

// LogIPBlocked logs an IP crossing the block threshold
func (sl *SecurityLogger) LogIPBlocked(ipAddress string, violations int) {
	sl.logger.LogAttrs(context.Background(), slog.LevelError, "ip_blocked",
		slog.String("audit_type", "security"),
		slog.String("ip_address", ipAddress),
		slog.Int("violations", violations),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}

// LogIPUnblocked logs an administrative unblock
func (sl *SecurityLogger) LogIPUnblocked(ipAddress, actorID string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("ip_address", ipAddress),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	if actorID != "" {
		attrs = append(attrs, slog.String("actor_id", actorID))
	}

	sl.logger.LogAttrs(context.Background(), slog.LevelInfo, "ip_unblocked", attrs...)
}
