package repositories

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the security stats mirror
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisSecurityStats mirrors security event counters into Redis hashes so that
// several instances can be observed together. Counters are per event type:
// a cumulative total hash plus one hash per minute bucket.
type RedisSecurityStats struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisSecurityStatsOption configures a RedisSecurityStats
type RedisSecurityStatsOption func(*RedisSecurityStats)

// WithStatsPrefix sets the key prefix (default "security:stats")
func WithStatsPrefix(prefix string) RedisSecurityStatsOption {
	return func(s *RedisSecurityStats) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithStatsTTL sets the expiry of minute buckets (default 24h)
func WithStatsTTL(d time.Duration) RedisSecurityStatsOption {
	return func(s *RedisSecurityStats) { s.ttl = d }
}

// NewRedisSecurityStats creates a new RedisSecurityStats
func NewRedisSecurityStats(rdb redis.Cmdable, opts ...RedisSecurityStatsOption) *RedisSecurityStats {
	s := &RedisSecurityStats{
		rdb:    rdb,
		prefix: "security:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSecurityStats) totalKey() string {
	return s.prefix + ":total"
}

func (s *RedisSecurityStats) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

// RecordSecurityEvent increments the total and minute-bucket counters for the event type
func (s *RedisSecurityStats) RecordSecurityEvent(ctx context.Context, event models.SecurityEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	field := string(event.Type)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), field, 1)

	bucketKey := s.minuteKey(at)
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if event.Blocked {
		pipe.HIncrBy(ctx, s.totalKey(), "blocked", 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record security stats: %w", err)
	}
	return nil
}

// Totals returns the cumulative counters by event type
func (s *RedisSecurityStats) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.totalKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read security stats: %w", err)
	}

	totals := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		totals[field] = n
	}
	return totals, nil
}
