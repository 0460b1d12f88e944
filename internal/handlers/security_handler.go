package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
)

// SecurityMonitorService is the part of the security monitor exposed to operators
type SecurityMonitorService interface {
	GetSecurityStats() models.SecurityStats
	GetRecentEvents(limit int) []models.SecurityEvent
	BlockedIPs() []string
	UnblockIP(ip string) bool
}

// RateLimitResetter clears every rate limiter
type RateLimitResetter interface {
	ResetAll()
}

// SecurityEventHistory reads persisted security events
type SecurityEventHistory interface {
	ListByIP(ctx context.Context, ip string, limit int) ([]*models.SecurityEvent, error)
}

// ClusterStats reports event counts shared by every instance
type ClusterStats interface {
	Totals(ctx context.Context) (map[string]int64, error)
}

// SecurityHandler serves the operator security view and the development reset endpoint
type SecurityHandler struct {
	monitor   SecurityMonitorService
	limiters  RateLimitResetter
	history   SecurityEventHistory
	cluster   ClusterStats
	env       string
	logger    *slog.Logger
	secLogger *pkglogger.SecurityLogger
}

// SecurityHandlerOption configures optional data sources of the security view
type SecurityHandlerOption func(*SecurityHandler)

// WithEventHistory enables GET /api/admin/security/events
func WithEventHistory(history SecurityEventHistory) SecurityHandlerOption {
	return func(h *SecurityHandler) { h.history = history }
}

// WithClusterStats adds cluster-wide totals to the overview
func WithClusterStats(cluster ClusterStats) SecurityHandlerOption {
	return func(h *SecurityHandler) { h.cluster = cluster }
}

// NewSecurityHandler creates a new SecurityHandler
func NewSecurityHandler(monitor SecurityMonitorService, limiters RateLimitResetter, env string, logger *slog.Logger, opts ...SecurityHandlerOption) *SecurityHandler {
	h := &SecurityHandler{
		monitor:   monitor,
		limiters:  limiters,
		env:       env,
		logger:    logger,
		secLogger: pkglogger.NewSecurityLogger(logger),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

const (
	defaultSecurityEventLimit = 50
	maxSecurityEventLimit     = 500
)

// SecurityOverviewResponse is returned by GET /api/admin/security
type SecurityOverviewResponse struct {
	Stats         models.SecurityStats   `json:"stats"`
	RecentEvents  []models.SecurityEvent `json:"recentEvents"`
	BlockedIPs    []string               `json:"blockedIPs"`
	ClusterTotals map[string]int64       `json:"clusterTotals,omitempty"`
}

// SecurityHistoryResponse is returned by GET /api/admin/security/events
type SecurityHistoryResponse struct {
	IP     string                  `json:"ip"`
	Events []*models.SecurityEvent `json:"events"`
}

// UnblockResponse is returned by DELETE /api/admin/security
type UnblockResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GetSecurityOverview handles GET /api/admin/security
// Accepts optional query param ?limit=N (1..500, default 50).
// Event IPs are masked; blocked IPs are listed in full so they can be unblocked.
func (h *SecurityHandler) GetSecurityOverview(w http.ResponseWriter, r *http.Request) {
	limit := defaultSecurityEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if _, err := parseIntParam(l, &limit, 1, maxSecurityEventLimit); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}

	events := h.monitor.GetRecentEvents(limit)
	for i := range events {
		events[i].IP = pkglogger.MaskIP(events[i].IP)
	}

	response := SecurityOverviewResponse{
		Stats:        h.monitor.GetSecurityStats(),
		RecentEvents: events,
		BlockedIPs:   h.monitor.BlockedIPs(),
	}

	// Redis totals are best effort; the local view is still useful without them
	if h.cluster != nil {
		totals, err := h.cluster.Totals(r.Context())
		if err != nil {
			h.logger.Warn("failed to read cluster security totals", slog.Any("error", err))
		} else {
			response.ClusterTotals = totals
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetEventHistory handles GET /api/admin/security/events?ip=&limit=
// Returns the persisted events for one IP, newest first. The IP is not masked
// since the caller supplied it.
func (h *SecurityHandler) GetEventHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		pkghttp.WriteNotFound(w, "Event history is not available")
		return
	}

	ip := r.URL.Query().Get("ip")
	if net.ParseIP(ip) == nil {
		pkghttp.WriteBadRequest(w, "ip must be a valid IPv4 or IPv6 address")
		return
	}

	limit := defaultSecurityEventLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if _, err := parseIntParam(l, &limit, 1, maxSecurityEventLimit); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}

	events, err := h.history.ListByIP(r.Context(), ip, limit)
	if err != nil {
		h.logger.Error("failed to list security events", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to load security events")
		return
	}
	if events == nil {
		events = []*models.SecurityEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SecurityHistoryResponse{IP: ip, Events: events})
}

// UnblockIP handles DELETE /api/admin/security?ip=
func (h *SecurityHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		pkghttp.WriteBadRequest(w, "ip query parameter is required")
		return
	}
	if net.ParseIP(ip) == nil {
		pkghttp.WriteBadRequest(w, "ip must be a valid IPv4 or IPv6 address")
		return
	}

	if !h.monitor.UnblockIP(ip) {
		pkghttp.WriteNotFound(w, "IP address is not blocked")
		return
	}

	actorID := ""
	if session := auth.GetSessionFromContext(r); session != nil {
		actorID = session.UserID()
	}
	h.secLogger.LogIPUnblocked(ip, actorID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UnblockResponse{
		Success: true,
		Message: "IP " + ip + " has been unblocked",
	})
}

// ResetRateLimits handles POST /api/dev/reset-rate-limits (development only)
func (h *SecurityHandler) ResetRateLimits(w http.ResponseWriter, r *http.Request) {
	if h.env != "development" {
		pkghttp.WriteNotFound(w, "Not found")
		return
	}

	h.limiters.ResetAll()
	h.logger.Info("rate limits reset", slog.String("env", h.env))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UnblockResponse{
		Success: true,
		Message: "All rate limits have been reset",
	})
}

// parseIntParam parses value into dest when it lies within [min, max]
func parseIntParam(value string, dest *int, min, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, strconv.ErrRange
	}

	*dest = n
	return n, nil
}
