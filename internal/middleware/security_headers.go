package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeadersConfig holds security headers configuration
type SecurityHeadersConfig struct {
	Env string
	// Origins of the hosted identity provider (scripts, frames, API calls, images)
	IdentityProviderOrigins []string
	// Origins of the hosted database's HTTP endpoint (API calls only)
	DatabaseOrigins []string
}

// ContentSecurityPolicy builds the CSP string for the configured vendor origins
func (c SecurityHeadersConfig) ContentSecurityPolicy() string {
	idp := strings.Join(c.IdentityProviderOrigins, " ")
	db := strings.Join(c.DatabaseOrigins, " ")

	scriptSrc := []string{"'self'", idp}
	connectSrc := []string{"'self'", idp, db}
	if c.Env != "production" {
		// hot reload needs eval and a websocket
		scriptSrc = append(scriptSrc, "'unsafe-eval'")
		connectSrc = append(connectSrc, "ws:", "wss:")
	}

	directives := []string{
		"default-src 'self'",
		"script-src " + joinSources(scriptSrc),
		"style-src 'self' 'unsafe-inline'",
		"img-src " + joinSources([]string{"'self'", "data:", "blob:", idp}),
		"font-src 'self' data:",
		"connect-src " + joinSources(connectSrc),
		"frame-src " + joinSources([]string{"'self'", idp}),
		"worker-src 'self' blob:",
		"frame-ancestors 'none'",
		"base-uri 'self'",
		"form-action 'self'",
	}
	return strings.Join(directives, "; ")
}

func joinSources(sources []string) string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

// ApplySecurityHeaders sets the fixed security header set on w
func ApplySecurityHeaders(w http.ResponseWriter, config SecurityHeadersConfig) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Content-Security-Policy", config.ContentSecurityPolicy())

	// Browsers ignore HSTS received over plain http, so it is always sent
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

	h.Set("Permissions-Policy",
		"accelerometer=(), camera=(), geolocation=(), gyroscope=(), "+
			"magnetometer=(), microphone=(), payment=(), usb=()")
	h.Set("X-DNS-Prefetch-Control", "off")

	// The identity provider's widgets are cross-origin, so require-corp would break sign-in
	h.Set("Cross-Origin-Embedder-Policy", "credentialless")
	h.Set("Cross-Origin-Opener-Policy", "same-origin-allow-popups")
	h.Set("Cross-Origin-Resource-Policy", "same-site")
}
