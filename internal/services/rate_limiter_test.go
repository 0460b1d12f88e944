package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock is a settable clock for time-dependent tests
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(window time.Duration, max int, clock *fixedClock) *RateLimiter {
	rl := NewRateLimiter(RateLimiterConfig{Name: "test", Window: window, MaxRequests: max})
	rl.now = clock.Now
	return rl
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	clock := newFixedClock(testEpoch)
	rl := newTestLimiter(time.Minute, 100, clock)

	for i := 1; i <= 100; i++ {
		result := rl.CheckRateLimit("1.2.3.4")
		require.True(t, result.Success, "request %d", i)
		assert.Equal(t, 100-i, result.Remaining)
		assert.Equal(t, testEpoch.Add(time.Minute), result.ResetTime)
	}

	result := rl.CheckRateLimit("1.2.3.4")
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 100, result.Limit)
	assert.Equal(t, testEpoch.Add(time.Minute), result.ResetTime)
}

func TestRateLimiter_RejectionDoesNotCount(t *testing.T) {
	clock := newFixedClock(testEpoch)
	rl := newTestLimiter(time.Minute, 2, clock)

	rl.CheckRateLimit("a")
	rl.CheckRateLimit("a")
	for i := 0; i < 5; i++ {
		assert.False(t, rl.CheckRateLimit("a").Success)
	}

	rl.mu.Lock()
	count := rl.records["a"].Count
	rl.mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	clock := newFixedClock(testEpoch)
	rl := newTestLimiter(time.Minute, 3, clock)

	for i := 0; i < 4; i++ {
		rl.CheckRateLimit("a")
	}
	assert.False(t, rl.CheckRateLimit("a").Success)

	// exactly at the reset instant the window is still current
	clock.Advance(time.Minute)
	assert.False(t, rl.CheckRateLimit("a").Success)

	clock.Advance(time.Millisecond)
	result := rl.CheckRateLimit("a")
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), result.ResetTime)
}

func TestRateLimiter_IdentifiersAreIndependent(t *testing.T) {
	clock := newFixedClock(testEpoch)
	rl := newTestLimiter(time.Minute, 1, clock)

	assert.True(t, rl.CheckRateLimit("a").Success)
	assert.False(t, rl.CheckRateLimit("a").Success)
	assert.True(t, rl.CheckRateLimit("b").Success)
}

func TestRateLimiter_RemainingNeverNegative(t *testing.T) {
	clock := newFixedClock(testEpoch)
	rl := newTestLimiter(time.Minute, 0, clock)

	result := rl.CheckRateLimit("a")
	assert.GreaterOrEqual(t, result.Remaining, 0)

	rl = newTestLimiter(time.Minute, 5, clock)
	last := 5
	for i := 0; i < 10; i++ {
		r := rl.CheckRateLimit("a")
		assert.GreaterOrEqual(t, r.Remaining, 0)
		assert.LessOrEqual(t, r.Remaining, last)
		last = r.Remaining
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := newFixedClock(testEpoch)
	rl := newTestLimiter(time.Minute, 10, clock)

	rl.CheckRateLimit("old")
	clock.Advance(30 * time.Second)
	rl.CheckRateLimit("new")
	clock.Advance(31 * time.Second)

	removed := rl.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, rl.Len())

	// an expired identifier starts a fresh window after cleanup
	result := rl.CheckRateLimit("old")
	assert.True(t, result.Success)
	assert.Equal(t, 9, result.Remaining)
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Window: time.Minute, MaxRequests: 1})
	rl.CheckRateLimit("a")
	assert.False(t, rl.CheckRateLimit("a").Success)

	rl.Reset()

	assert.Equal(t, 0, rl.Len())
	assert.True(t, rl.CheckRateLimit("a").Success)
}

func TestRateLimiter_ConcurrentChecksNeverExceedLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Window: time.Minute, MaxRequests: 50})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.CheckRateLimit("shared").Success {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestRateLimiterSet_ForPath(t *testing.T) {
	set := NewRateLimiterSet(DefaultRateLimiterSetConfig())

	tests := []struct {
		path     string
		expected string
	}{
		{"/sign-in", LimiterAuth},
		{"/sign-in/factor-one", LimiterAuth},
		{"/sign-up", LimiterAuth},
		{"/api/tasks", LimiterAPI},
		{"/api/admin/security", LimiterAPI},
		{"/", LimiterGeneral},
		{"/dashboard", LimiterGeneral},
		{"/apikeys", LimiterGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, set.ForPath(tt.path).Name())
		})
	}
}

func TestRateLimiterSet_CustomSignInPath(t *testing.T) {
	defaults := DefaultRateLimiterSetConfig()
	config := defaults.WithSignInPath("/login")
	set := NewRateLimiterSet(config)

	assert.Equal(t, LimiterAuth, set.ForPath("/login").Name())
	assert.Equal(t, LimiterAuth, set.ForPath("/login/sso-callback").Name())
	assert.Equal(t, LimiterAuth, set.ForPath("/sign-in").Name())
	assert.Equal(t, []string{"/sign-in", "/sign-up"}, defaults.AuthPrefixes)

	same := defaults.WithSignInPath("/sign-in")
	assert.Equal(t, []string{"/sign-in", "/sign-up"}, same.AuthPrefixes)
}

func TestRateLimiterSet_DefaultQuotas(t *testing.T) {
	set := NewRateLimiterSet(DefaultRateLimiterSetConfig())

	assert.Equal(t, 100, set.General.Config().MaxRequests)
	assert.Equal(t, time.Minute, set.General.Config().Window)
	assert.Equal(t, 5, set.Auth.Config().MaxRequests)
	assert.Equal(t, 15*time.Minute, set.Auth.Config().Window)
	assert.Equal(t, 50, set.API.Config().MaxRequests)
	assert.Equal(t, time.Minute, set.API.Config().Window)
}

func TestRateLimiterSet_CleanupAndResetAll(t *testing.T) {
	clock := newFixedClock(testEpoch)
	set := NewRateLimiterSet(DefaultRateLimiterSetConfig())
	for _, l := range set.All() {
		l.now = clock.Now
		l.CheckRateLimit("x")
	}

	clock.Advance(2 * time.Minute)
	// auth window is 15 minutes, so only general and api expire
	assert.Equal(t, 2, set.CleanupAll())
	assert.Equal(t, 1, set.Auth.Len())

	set.ResetAll()
	for _, l := range set.All() {
		assert.Equal(t, 0, l.Len())
	}
}
