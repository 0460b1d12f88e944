package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/services"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type guardFixture struct {
	handler  http.Handler
	limiters *services.RateLimiterSet
	monitor  *services.SecurityMonitor
	reached  int
}

func newGuardFixture(t *testing.T, config GuardConfig, limits services.RateLimiterSetConfig) *guardFixture {
	t.Helper()

	f := &guardFixture{
		limiters: services.NewRateLimiterSet(limits),
		monitor:  services.NewSecurityMonitor(services.DefaultSecurityMonitorConfig(), slog.Default()),
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.reached++
		w.WriteHeader(http.StatusOK)
	})
	f.handler = SecurityGuard(config, f.limiters, f.monitor, slog.Default())(next)
	return f
}

func defaultGuardConfig() GuardConfig {
	return GuardConfig{
		Env:               "production",
		DevPathPrefix:     "/api/dev/",
		ProtectedPrefixes: []string{"/dashboard", "/calendar"},
		SignInPath:        "/sign-in",
		Headers:           SecurityHeadersConfig{Env: "production"},
	}
}

func withSession(r *http.Request, userID string) *http.Request {
	claims := &models.SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}
	return r.WithContext(auth.WithSession(r.Context(), claims))
}

func (f *guardFixture) serve(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func TestSecurityGuard_ScannerWithSQLInjectionIsBlocked(t *testing.T) {
	f := newGuardFixture(t, defaultGuardConfig(), services.DefaultRateLimiterSetConfig())

	req := httptest.NewRequest("GET", "/api/tasks?id=1'%20OR%20'1'='1", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	w := f.serve(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "Suspicious Request Blocked", w.Body.String())
	assert.Equal(t, 0, f.reached)

	events := f.monitor.GetRecentEvents(10)
	require.Len(t, events, 1)
	assert.Equal(t, models.SecurityEventSQLInjectionAttempt, events[0].Type)
	assert.Equal(t, models.SeverityHigh, events[0].Severity)
	assert.Equal(t, "1.2.3.4", events[0].IP)
	assert.True(t, events[0].Blocked)
	assert.Contains(t, events[0].Details, "Suspicious user agent: sqlmap")
	assert.Contains(t, events[0].Details, "SQL injection pattern detected")
}

func TestSecurityGuard_GeneralLimitReturns429(t *testing.T) {
	f := newGuardFixture(t, defaultGuardConfig(), services.DefaultRateLimiterSetConfig())

	var w *httptest.ResponseRecorder
	for i := 0; i < 101; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "5.6.7.8")
		w = f.serve(req)
		if i < 100 {
			require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 100, f.reached)

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	var body pkghttp.RateLimitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.NotEmpty(t, body.Message)
	_, err = time.Parse(time.RFC3339, body.ResetTime)
	assert.NoError(t, err)

	events := f.monitor.GetRecentEvents(10)
	require.Len(t, events, 1)
	assert.Equal(t, models.SecurityEventRateLimitExceeded, events[0].Type)
	assert.Equal(t, models.SeverityLow, events[0].Severity)
	assert.True(t, events[0].Blocked)
}

func TestSecurityGuard_AuthLimiterTripIsMediumSeverity(t *testing.T) {
	f := newGuardFixture(t, defaultGuardConfig(), services.DefaultRateLimiterSetConfig())

	var w *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest("POST", "/sign-in", nil)
		req.Header.Set("X-Real-IP", "9.9.9.9")
		w = f.serve(req)
	}

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))

	events := f.monitor.GetRecentEvents(10)
	require.Len(t, events, 1)
	assert.Equal(t, models.SeverityMedium, events[0].Severity)
	assert.Equal(t, "9.9.9.9", events[0].IP)
}

func TestSecurityGuard_BlockedIPIsDenied(t *testing.T) {
	f := newGuardFixture(t, defaultGuardConfig(), services.DefaultRateLimiterSetConfig())

	for i := 0; i < 5; i++ {
		f.monitor.LogSecurityEvent(t.Context(), models.SecurityEvent{
			Type:     models.SecurityEventXSSAttempt,
			IP:       "6.6.6.6",
			Severity: models.SeverityHigh,
		})
	}
	require.True(t, f.monitor.IsIPBlocked("6.6.6.6"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "6.6.6.6, 10.0.0.1")
	w := f.serve(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "Access Denied", w.Body.String())
	assert.Equal(t, 0, f.reached)

	events := f.monitor.GetRecentEvents(1)
	require.Len(t, events, 1)
	assert.Equal(t, models.SecurityEventUnauthorizedAccess, events[0].Type)
	assert.Equal(t, models.SeverityCritical, events[0].Severity)
	assert.True(t, events[0].Blocked)
}

func TestSecurityGuard_ProtectedPageRedirectsToSignIn(t *testing.T) {
	f := newGuardFixture(t, defaultGuardConfig(), services.DefaultRateLimiterSetConfig())

	w := f.serve(httptest.NewRequest("GET", "/dashboard/today", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/sign-in?redirect_url=%2Fdashboard%2Ftoday", w.Header().Get("Location"))
	assert.Empty(t, f.monitor.GetRecentEvents(10))

	w = f.serve(withSession(httptest.NewRequest("GET", "/dashboard/today", nil), "user_1"))
	assert.Equal(t, http.StatusOK, w.Code)

	// prefix match stops at path boundaries
	w = f.serve(httptest.NewRequest("GET", "/dashboards-public", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSecurityGuard_DevelopmentBypass(t *testing.T) {
	config := defaultGuardConfig()
	config.Env = "development"
	f := newGuardFixture(t, config, services.DefaultRateLimiterSetConfig())

	req := httptest.NewRequest("POST", "/api/dev/reset-rate-limits", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	w := f.serve(req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.monitor.GetRecentEvents(10))
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))

	// outside the dev prefix, checks still run in development
	req = httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	w = f.serve(req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSecurityGuard_DevPrefixCheckedInProduction(t *testing.T) {
	f := newGuardFixture(t, defaultGuardConfig(), services.DefaultRateLimiterSetConfig())

	req := httptest.NewRequest("POST", "/api/dev/reset-rate-limits", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	w := f.serve(req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	events := f.monitor.GetRecentEvents(10)
	require.Len(t, events, 1)
	assert.Equal(t, models.SecurityEventSuspiciousRequest, events[0].Type)
}

func TestSecurityGuard_AllowedRequestGetsHeaders(t *testing.T) {
	f := newGuardFixture(t, defaultGuardConfig(), services.DefaultRateLimiterSetConfig())

	w := f.serve(httptest.NewRequest("GET", "/about", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.reached)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "99", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, f.monitor.GetRecentEvents(10))
}

func TestSecurityGuard_SessionUsersHaveSeparateQuotas(t *testing.T) {
	limits := services.DefaultRateLimiterSetConfig()
	limits.API.MaxRequests = 2
	f := newGuardFixture(t, defaultGuardConfig(), limits)

	for i := 0; i < 2; i++ {
		w := f.serve(withSession(httptest.NewRequest("GET", "/api/tasks", nil), "alice"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.serve(withSession(httptest.NewRequest("GET", "/api/tasks", nil), "alice"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// same IP, different user
	w = f.serve(withSession(httptest.NewRequest("GET", "/api/tasks", nil), "bob"))
	assert.Equal(t, http.StatusOK, w.Code)

	events := f.monitor.GetRecentEvents(10)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, "alice", *events[0].UserID)
	assert.Equal(t, "127.0.0.1", events[0].IP)
}

func TestSecurityGuard_TrustedProxiesIgnoreSpoofedHeaders(t *testing.T) {
	config := defaultGuardConfig()
	config.TrustedProxies = []string{"10.0.0.0/8"}
	f := newGuardFixture(t, config, services.DefaultRateLimiterSetConfig())

	req := httptest.NewRequest("GET", "/?q=%3Cscript%3E", nil)
	req.RemoteAddr = "203.0.113.9:4444"
	req.Header.Set("X-Forwarded-For", "1.1.1.1")
	f.serve(req)

	events := f.monitor.GetRecentEvents(1)
	require.Len(t, events, 1)
	assert.Equal(t, "203.0.113.9", events[0].IP)
	assert.Equal(t, models.SecurityEventXSSAttempt, events[0].Type)
}

func TestClassifySuspicion(t *testing.T) {
	tests := []struct {
		name     string
		reasons  []string
		expected models.SecurityEventType
	}{
		{"sql wins over xss", []string{services.ReasonXSS, services.ReasonSQLInjection}, models.SecurityEventSQLInjectionAttempt},
		{"xss", []string{"Suspicious user agent: curl", services.ReasonXSS}, models.SecurityEventXSSAttempt},
		{"traversal is generic", []string{services.ReasonPathTraversal}, models.SecurityEventSuspiciousRequest},
		{"scanner is generic", []string{"Suspicious user agent: nikto"}, models.SecurityEventSuspiciousRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifySuspicion(tt.reasons))
		})
	}
}
