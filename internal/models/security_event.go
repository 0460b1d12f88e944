package models

import "time"

// SecurityEventType classifies a security-relevant occurrence.
type SecurityEventType string

const (
	SecurityEventRateLimitExceeded     SecurityEventType = "rate_limit_exceeded"
	SecurityEventSuspiciousRequest     SecurityEventType = "suspicious_request"
	SecurityEventAuthenticationFailure SecurityEventType = "authentication_failure"
	SecurityEventUnauthorizedAccess    SecurityEventType = "unauthorized_access"
	SecurityEventSQLInjectionAttempt   SecurityEventType = "sql_injection_attempt"
	SecurityEventXSSAttempt            SecurityEventType = "xss_attempt"
	SecurityEventInvalidInput          SecurityEventType = "invalid_input"
	SecurityEventBruteForceAttempt     SecurityEventType = "brute_force_attempt"
)

// Severity of a security event. Only high and critical count towards IP blocking.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Escalates reports whether events of this severity count as violations.
func (s Severity) Escalates() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// SecurityEvent is one entry of the security monitor's append-only log.
// Entries are never mutated after they are appended.
type SecurityEvent struct {
	Type      SecurityEventType `json:"type" db:"event_type"`
	Timestamp time.Time         `json:"timestamp" db:"occurred_at"`
	IP        string            `json:"ip" db:"ip_address"`
	UserAgent string            `json:"userAgent" db:"user_agent"`
	Endpoint  string            `json:"endpoint" db:"endpoint"`
	Details   string            `json:"details" db:"details"`
	Severity  Severity          `json:"severity" db:"severity"`
	Blocked   bool              `json:"blocked" db:"blocked"`
	UserID    *string           `json:"userId,omitempty" db:"user_id"`
}

// SecurityStats aggregates the retained security log.
type SecurityStats struct {
	TotalEvents   int                       `json:"totalEvents"`
	EventsByType  map[SecurityEventType]int `json:"eventsByType"`
	BlockedIPs    int                       `json:"blockedIPs"`
	SuspiciousIPs int                       `json:"suspiciousIPs"`
}
