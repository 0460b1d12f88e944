package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
)

// SecurityMonitorConfig holds retention and blocking thresholds
type SecurityMonitorConfig struct {
	Retention      time.Duration // events older than this are purged by Cleanup
	MaxEvents      int           // log length that triggers truncation
	TruncateTo     int           // number of most recent events kept after truncation
	BlockThreshold int           // high/critical violations before an IP is blocked
}

// DefaultSecurityMonitorConfig returns 24h retention, 1000/500 truncation and a block threshold of 5
func DefaultSecurityMonitorConfig() SecurityMonitorConfig {
	return SecurityMonitorConfig{
		Retention:      24 * time.Hour,
		MaxEvents:      1000,
		TruncateTo:     500,
		BlockThreshold: 5,
	}
}

// SecurityMonitor keeps a bounded in-memory log of security events,
// flags suspicious requests and blocks IPs after repeated severe violations.
type SecurityMonitor struct {
	mu            sync.RWMutex
	config        SecurityMonitorConfig
	events        []models.SecurityEvent
	suspiciousIPs map[string]int
	blockedIPs    map[string]struct{}

	rules      []SuspicionRule
	logger     *slog.Logger
	secLogger  *pkglogger.SecurityLogger
	dispatcher *EventDispatcher
	sinks      []SecurityEventSink
	notifiers  []IPBlockNotifier
	now        func() time.Time
}

// SecurityMonitorOption configures optional collaborators of the monitor
type SecurityMonitorOption func(*SecurityMonitor)

// WithRules replaces the default detection rules
func WithRules(rules []SuspicionRule) SecurityMonitorOption {
	return func(m *SecurityMonitor) {
		m.rules = rules
	}
}

// WithDispatcher sets the dispatcher used to deliver events to sinks and notifiers
func WithDispatcher(d *EventDispatcher) SecurityMonitorOption {
	return func(m *SecurityMonitor) {
		m.dispatcher = d
	}
}

// WithEventSinks adds sinks that receive a copy of every logged event
func WithEventSinks(sinks ...SecurityEventSink) SecurityMonitorOption {
	return func(m *SecurityMonitor) {
		m.sinks = append(m.sinks, sinks...)
	}
}

// WithBlockNotifiers adds notifiers called when an IP gets blocked
func WithBlockNotifiers(notifiers ...IPBlockNotifier) SecurityMonitorOption {
	return func(m *SecurityMonitor) {
		m.notifiers = append(m.notifiers, notifiers...)
	}
}

// NewSecurityMonitor creates a new SecurityMonitor
func NewSecurityMonitor(config SecurityMonitorConfig, logger *slog.Logger, opts ...SecurityMonitorOption) *SecurityMonitor {
	defaults := DefaultSecurityMonitorConfig()
	if config.MaxEvents <= 0 {
		config.MaxEvents = defaults.MaxEvents
	}
	if config.TruncateTo <= 0 || config.TruncateTo > config.MaxEvents {
		config.TruncateTo = config.MaxEvents / 2
	}
	if config.BlockThreshold <= 0 {
		config.BlockThreshold = defaults.BlockThreshold
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}

	m := &SecurityMonitor{
		config:        config,
		events:        make([]models.SecurityEvent, 0, 64),
		suspiciousIPs: make(map[string]int),
		blockedIPs:    make(map[string]struct{}),
		rules:         DefaultRules(),
		logger:        logger,
		secLogger:     pkglogger.NewSecurityLogger(logger),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// LogSecurityEvent stamps the event with the current time and appends it to the log.
// High and critical events count as violations against the event's IP.
func (m *SecurityMonitor) LogSecurityEvent(ctx context.Context, event models.SecurityEvent) {
	m.mu.Lock()

	event.Timestamp = m.now()
	m.events = append(m.events, event)

	// Size-based retention: keep only the most recent entries
	if len(m.events) > m.config.MaxEvents {
		kept := make([]models.SecurityEvent, m.config.TruncateTo)
		copy(kept, m.events[len(m.events)-m.config.TruncateTo:])
		m.events = kept
	}

	blocked := false
	violations := 0
	if event.Severity.Escalates() && event.IP != "" {
		m.suspiciousIPs[event.IP]++
		violations = m.suspiciousIPs[event.IP]
		if violations >= m.config.BlockThreshold {
			if _, already := m.blockedIPs[event.IP]; !already {
				m.blockedIPs[event.IP] = struct{}{}
				blocked = true
			}
		}
	}

	m.mu.Unlock()

	entry := pkglogger.SecurityLogEntry{
		EventType: string(event.Type),
		Severity:  string(event.Severity),
		IPAddress: event.IP,
		UserAgent: event.UserAgent,
		Endpoint:  event.Endpoint,
		Details:   event.Details,
		Blocked:   event.Blocked,
		Timestamp: event.Timestamp,
	}
	if event.UserID != nil {
		entry.UserID = *event.UserID
	}
	m.secLogger.LogEvent(entry)

	if blocked {
		m.secLogger.LogIPBlocked(event.IP, violations)
	}

	m.dispatch(event, blocked, violations)
}

func (m *SecurityMonitor) dispatch(event models.SecurityEvent, blocked bool, violations int) {
	if m.dispatcher == nil {
		return
	}

	for _, sink := range m.sinks {
		m.dispatcher.Submit("record_security_event", func(ctx context.Context) error {
			return sink.RecordSecurityEvent(ctx, event)
		})
	}

	if !blocked {
		return
	}
	for _, notifier := range m.notifiers {
		m.dispatcher.Submit("notify_ip_blocked", func(ctx context.Context) error {
			return notifier.NotifyIPBlocked(ctx, event.IP, violations)
		})
	}
}

// IsIPBlocked reports whether ip is in the blocked set
func (m *SecurityMonitor) IsIPBlocked(ip string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blockedIPs[ip]
	return ok
}

// IsSuspiciousRequest evaluates every detection rule independently and collects a reason per match
func (m *SecurityMonitor) IsSuspiciousRequest(in SuspiciousRequestInput) SuspicionResult {
	reasons := make([]string, 0)
	for _, rule := range m.rules {
		if reason, ok := rule.Check(in); ok {
			reasons = append(reasons, reason)
		}
	}

	return SuspicionResult{
		Suspicious: len(reasons) > 0,
		Reasons:    reasons,
	}
}

// GetRecentEvents returns up to limit of the newest events, oldest first
func (m *SecurityMonitor) GetRecentEvents(limit int) []models.SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		return []models.SecurityEvent{}
	}
	start := len(m.events) - limit
	if start < 0 {
		start = 0
	}

	recent := make([]models.SecurityEvent, len(m.events)-start)
	copy(recent, m.events[start:])
	return recent
}

// GetSecurityStats aggregates the retained log
func (m *SecurityMonitor) GetSecurityStats() models.SecurityStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[models.SecurityEventType]int)
	for _, e := range m.events {
		byType[e.Type]++
	}

	return models.SecurityStats{
		TotalEvents:   len(m.events),
		EventsByType:  byType,
		BlockedIPs:    len(m.blockedIPs),
		SuspiciousIPs: len(m.suspiciousIPs),
	}
}

// BlockedIPs returns the blocked addresses in sorted order
func (m *SecurityMonitor) BlockedIPs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ips := make([]string, 0, len(m.blockedIPs))
	for ip := range m.blockedIPs {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// UnblockIP removes ip from the blocked set and reports whether it was present.
// The violation count is kept until the next Cleanup.
func (m *SecurityMonitor) UnblockIP(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.blockedIPs[ip]; !ok {
		return false
	}
	delete(m.blockedIPs, ip)
	return true
}

// Cleanup purges events older than the retention period and clears every
// suspicion counter. Blocked IPs stay blocked. Returns the number of events purged.
func (m *SecurityMonitor) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.config.Retention)

	// Log is in append order, so the first retained entry ends the expired prefix
	idx := sort.Search(len(m.events), func(i int) bool {
		return !m.events[i].Timestamp.Before(cutoff)
	})
	if idx > 0 {
		kept := make([]models.SecurityEvent, len(m.events)-idx)
		copy(kept, m.events[idx:])
		m.events = kept
	}

	m.suspiciousIPs = make(map[string]int)

	return idx
}
