package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/services"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
)

// GuardConfig configures the per-request security guard
type GuardConfig struct {
	Env string

	// Requests under this prefix skip every check in development
	DevPathPrefix string

	// Page prefixes that require a session; anonymous visitors are sent to SignInPath
	ProtectedPrefixes []string
	SignInPath        string

	// When set, the client IP is only read from forwarding headers sent by these proxies
	TrustedProxies []string

	Headers SecurityHeadersConfig
}

// Response bodies for blocked requests
const (
	accessDeniedBody       = "Access Denied"
	suspiciousRequestBody  = "Suspicious Request Blocked"
	blockedIPEventDetails  = "Request from blocked IP address"
	defaultRateLimitReason = "Too many requests. Please try again later."
)

var rateLimitMessages = map[string]string{
	services.LimiterGeneral: defaultRateLimitReason,
	services.LimiterAuth:    "Too many authentication attempts. Please try again later.",
	services.LimiterAPI:     "API rate limit exceeded. Please slow down.",
}

type securityGuard struct {
	config   GuardConfig
	limiters *services.RateLimiterSet
	monitor  *services.SecurityMonitor
	logger   *slog.Logger
	ipConfig *pkghttp.IPConfig
	now      func() time.Time
}

// SecurityGuard returns the middleware that runs, in order: the protected page
// redirect, the development bypass, the blocked IP check, suspicious request
// detection and the scoped rate limit, then attaches the security headers.
// Every request it refuses produces exactly one security event.
func SecurityGuard(config GuardConfig, limiters *services.RateLimiterSet, monitor *services.SecurityMonitor, logger *slog.Logger) func(http.Handler) http.Handler {
	return newSecurityGuard(config, limiters, monitor, logger).middleware
}

func newSecurityGuard(config GuardConfig, limiters *services.RateLimiterSet, monitor *services.SecurityMonitor, logger *slog.Logger) *securityGuard {
	if config.SignInPath == "" {
		config.SignInPath = "/sign-in"
	}

	g := &securityGuard{
		config:   config,
		limiters: limiters,
		monitor:  monitor,
		logger:   logger,
		now:      time.Now,
	}
	if len(config.TrustedProxies) > 0 {
		g.ipConfig = &pkghttp.IPConfig{TrustedProxies: config.TrustedProxies}
	}
	return g
}

func (g *securityGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		session := auth.GetSessionFromContext(r)

		// 1. Protected pages need a session
		if session == nil && g.isProtected(path) {
			target := g.config.SignInPath + "?redirect_url=" + url.QueryEscape(path)
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}

		// 2. Development tooling bypasses the guard
		if g.config.Env == "development" && g.config.DevPathPrefix != "" && strings.HasPrefix(path, g.config.DevPathPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		ip := g.clientIP(r)
		event := models.SecurityEvent{
			IP:        ip,
			UserAgent: r.UserAgent(),
			Endpoint:  path,
			Blocked:   true,
		}
		if session != nil {
			userID := session.UserID()
			event.UserID = &userID
		}

		// 3. Blocked IPs
		if g.monitor.IsIPBlocked(ip) {
			event.Type = models.SecurityEventUnauthorizedAccess
			event.Severity = models.SeverityCritical
			event.Details = blockedIPEventDetails
			g.monitor.LogSecurityEvent(r.Context(), event)

			writePlainText(w, http.StatusForbidden, accessDeniedBody)
			return
		}

		// 4. Suspicious requests
		suspicion := g.monitor.IsSuspiciousRequest(services.SuspiciousRequestInput{
			UserAgent: r.UserAgent(),
			URL:       requestURI(r),
		})
		if suspicion.Suspicious {
			event.Type = ClassifySuspicion(suspicion.Reasons)
			event.Severity = models.SeverityHigh
			event.Details = strings.Join(suspicion.Reasons, "; ")
			g.monitor.LogSecurityEvent(r.Context(), event)

			writePlainText(w, http.StatusForbidden, suspiciousRequestBody)
			return
		}

		// 5. Scoped rate limit
		limiter := g.limiters.ForPath(path)
		identifier := ip
		if session != nil && session.UserID() != "" {
			identifier = "user:" + session.UserID()
		}

		result := limiter.CheckRateLimit(identifier)
		if !result.Success {
			event.Type = models.SecurityEventRateLimitExceeded
			event.Severity = models.SeverityLow
			if limiter.Name() == services.LimiterAuth {
				event.Severity = models.SeverityMedium
			}
			event.Details = "Rate limit exceeded for " + limiter.Name() + " limiter"
			g.monitor.LogSecurityEvent(r.Context(), event)

			message, ok := rateLimitMessages[limiter.Name()]
			if !ok {
				message = defaultRateLimitReason
			}
			pkghttp.WriteRateLimited(w, result.Limit, result.ResetTime, g.now(), message)
			return
		}

		// 6. Allowed
		pkghttp.SetRateLimitHeaders(w, result.Limit, result.Remaining, result.ResetTime)
		ApplySecurityHeaders(w, g.config.Headers)
		next.ServeHTTP(w, r)
	})
}

func (g *securityGuard) isProtected(path string) bool {
	if path == g.config.SignInPath || strings.HasPrefix(path, g.config.SignInPath+"/") {
		return false
	}
	for _, prefix := range g.config.ProtectedPrefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (g *securityGuard) clientIP(r *http.Request) string {
	if g.ipConfig != nil {
		return pkghttp.ExtractClientIP(r, g.ipConfig)
	}
	return pkghttp.ClientIPFromHeaders(r)
}

// ClassifySuspicion picks the event type for a suspicious request:
// SQL injection wins over XSS, anything else is a generic suspicious request.
func ClassifySuspicion(reasons []string) models.SecurityEventType {
	hasXSS := false
	for _, reason := range reasons {
		if strings.HasPrefix(reason, services.ReasonSQLInjection) {
			return models.SecurityEventSQLInjectionAttempt
		}
		if strings.HasPrefix(reason, services.ReasonXSS) {
			hasXSS = true
		}
	}
	if hasXSS {
		return models.SecurityEventXSSAttempt
	}
	return models.SecurityEventSuspiciousRequest
}

// requestURI returns the request target as received, including the query string
func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

func writePlainText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
