package services

import (
	"strings"
	"sync"
	"time"
)

// RateLimiterConfig holds the window and quota of a single limiter instance
type RateLimiterConfig struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

// RateLimitRecord tracks one identifier inside the current fixed window
type RateLimitRecord struct {
	Count         int
	WindowResetAt time.Time
}

// RateLimitResult is the outcome of a rate limit check.
// A rejected request is a normal result, not an error.
type RateLimitResult struct {
	Success   bool
	Limit     int
	Remaining int
	ResetTime time.Time
}

// RateLimiter is a fixed-window request counter keyed by client identifier
type RateLimiter struct {
	mu      sync.Mutex
	config  RateLimiterConfig
	records map[string]*RateLimitRecord
	now     func() time.Time
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config:  config,
		records: make(map[string]*RateLimitRecord),
		now:     time.Now,
	}
}

// Name returns the scope name the limiter was configured with
func (rl *RateLimiter) Name() string {
	return rl.config.Name
}

// Config returns the limiter configuration
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}

// CheckRateLimit counts a request for identifier and reports whether it is allowed.
// The check and the increment happen under the same lock.
func (rl *RateLimiter) CheckRateLimit(identifier string) RateLimitResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	record, ok := rl.records[identifier]

	// First request or expired window: start a new window
	if !ok || now.After(record.WindowResetAt) {
		if !ok {
			record = &RateLimitRecord{}
			rl.records[identifier] = record
		}
		record.Count = 1
		record.WindowResetAt = now.Add(rl.config.Window)

		return RateLimitResult{
			Success:   true,
			Limit:     rl.config.MaxRequests,
			Remaining: max(rl.config.MaxRequests-1, 0),
			ResetTime: record.WindowResetAt,
		}
	}

	// Quota exhausted: reject without counting the request
	if record.Count >= rl.config.MaxRequests {
		return RateLimitResult{
			Success:   false,
			Limit:     rl.config.MaxRequests,
			Remaining: 0,
			ResetTime: record.WindowResetAt,
		}
	}

	record.Count++

	return RateLimitResult{
		Success:   true,
		Limit:     rl.config.MaxRequests,
		Remaining: rl.config.MaxRequests - record.Count,
		ResetTime: record.WindowResetAt,
	}
}

// Cleanup removes records whose window has already expired and returns how many were removed
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for identifier, record := range rl.records {
		if now.After(record.WindowResetAt) {
			delete(rl.records, identifier)
			removed++
		}
	}
	return removed
}

// Reset drops every record
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.records = make(map[string]*RateLimitRecord)
}

// Len returns the number of tracked identifiers (including expired ones not yet cleaned up)
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.records)
}

// Limiter scope names
const (
	LimiterGeneral = "general"
	LimiterAuth    = "auth"
	LimiterAPI     = "api"
)

// RateLimiterSetConfig configures the three scoped limiters
type RateLimiterSetConfig struct {
	General      RateLimiterConfig
	Auth         RateLimiterConfig
	API          RateLimiterConfig
	AuthPrefixes []string // paths that count against the authentication limiter
	APIPrefix    string
}

// DefaultRateLimiterSetConfig returns the standard quotas:
// general 100 req/min, authentication 5 req/15min, API 50 req/min.
func DefaultRateLimiterSetConfig() RateLimiterSetConfig {
	return RateLimiterSetConfig{
		General:      RateLimiterConfig{Name: LimiterGeneral, Window: time.Minute, MaxRequests: 100},
		Auth:         RateLimiterConfig{Name: LimiterAuth, Window: 15 * time.Minute, MaxRequests: 5},
		API:          RateLimiterConfig{Name: LimiterAPI, Window: time.Minute, MaxRequests: 50},
		AuthPrefixes: []string{"/sign-in", "/sign-up"},
		APIPrefix:    "/api/",
	}
}

// WithSignInPath returns a copy of c whose authentication prefixes include path.
// Used when the sign-in page is not at its default location.
func (c RateLimiterSetConfig) WithSignInPath(path string) RateLimiterSetConfig {
	if path == "" {
		return c
	}
	for _, p := range c.AuthPrefixes {
		if p == path {
			return c
		}
	}
	c.AuthPrefixes = append(append([]string(nil), c.AuthPrefixes...), path)
	return c
}

// RateLimiterSet owns the independent general, authentication and API limiters
type RateLimiterSet struct {
	General *RateLimiter
	Auth    *RateLimiter
	API     *RateLimiter

	authPrefixes []string
	apiPrefix    string
}

// NewRateLimiterSet creates the three scoped limiters
func NewRateLimiterSet(config RateLimiterSetConfig) *RateLimiterSet {
	config.General.Name = LimiterGeneral
	config.Auth.Name = LimiterAuth
	config.API.Name = LimiterAPI
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/"
	}

	return &RateLimiterSet{
		General:      NewRateLimiter(config.General),
		Auth:         NewRateLimiter(config.Auth),
		API:          NewRateLimiter(config.API),
		authPrefixes: config.AuthPrefixes,
		apiPrefix:    config.APIPrefix,
	}
}

// ForPath selects the limiter scoped to path: sign-in paths use the
// authentication limiter, API paths the API limiter, everything else the general one.
func (s *RateLimiterSet) ForPath(path string) *RateLimiter {
	for _, prefix := range s.authPrefixes {
		if strings.HasPrefix(path, prefix) {
			return s.Auth
		}
	}
	if strings.HasPrefix(path, s.apiPrefix) {
		return s.API
	}
	return s.General
}

// All returns the limiters in a fixed order
func (s *RateLimiterSet) All() []*RateLimiter {
	return []*RateLimiter{s.General, s.Auth, s.API}
}

// CleanupAll runs Cleanup on every limiter and returns the total number of records removed
func (s *RateLimiterSet) CleanupAll() int {
	removed := 0
	for _, l := range s.All() {
		removed += l.Cleanup()
	}
	return removed
}

// ResetAll clears the state of every limiter
func (s *RateLimiterSet) ResetAll() {
	for _, l := range s.All() {
		l.Reset()
	}
}
