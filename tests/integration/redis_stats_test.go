//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/repositories"
)

func TestRedisSecurityStats_RecordsTotals(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb, err := repositories.NewRedisClient(repositories.RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	stats := repositories.NewRedisSecurityStats(rdb, repositories.WithStatsPrefix("test:stats"))

	events := []models.SecurityEvent{
		{Type: models.SecurityEventSQLInjectionAttempt, Severity: models.SeverityHigh, IP: TestIP(4), Blocked: true, Timestamp: time.Now()},
		{Type: models.SecurityEventSQLInjectionAttempt, Severity: models.SeverityHigh, IP: TestIP(4), Blocked: true, Timestamp: time.Now()},
		{Type: models.SecurityEventRateLimitExceeded, Severity: models.SeverityLow, IP: TestIP(5), Blocked: true, Timestamp: time.Now()},
	}
	for _, e := range events {
		require.NoError(t, stats.RecordSecurityEvent(ctx, e))
	}

	totals, err := stats.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals[string(models.SecurityEventSQLInjectionAttempt)])
	assert.Equal(t, int64(1), totals[string(models.SecurityEventRateLimitExceeded)])
	assert.Equal(t, int64(3), totals["blocked"])
}
